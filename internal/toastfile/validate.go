package toastfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stepchowfun/toast/internal/graph"
	"github.com/stepchowfun/toast/internal/toasterr"
)

// Validate checks every invariant from spec §3 that can be established
// without resolving environment bindings: dependency references resolve,
// the graph is acyclic, cacheable tasks don't declare ports or mounts,
// and excluded_input_paths is a subset of input_paths' descendants.
func (t *Toastfile) Validate() error {
	if t.Image == "" {
		return toasterr.NewCodedError(toasterr.ErrValidation, "", "toastfile is missing a required \"image\"")
	}

	if t.Default != "" {
		if _, ok := t.Tasks[t.Default]; !ok {
			return toasterr.NewCodedError(toasterr.ErrValidation, "", fmt.Sprintf("default task %q is not defined", t.Default))
		}
	}

	names := make([]string, 0, len(t.Tasks))
	for name := range t.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		task := t.Tasks[name]

		for _, dep := range task.Dependencies {
			if _, ok := t.Tasks[dep]; !ok {
				return toasterr.NewCodedError(toasterr.ErrValidation, name, fmt.Sprintf("depends on undefined task %q", dep))
			}
		}

		if task.CacheEnabled() {
			if len(task.Ports) > 0 {
				return toasterr.NewCodedError(toasterr.ErrValidation, name, "is cacheable but declares ports")
			}
			if len(task.MountPaths) > 0 {
				return toasterr.NewCodedError(toasterr.ErrValidation, name, "is cacheable but declares mount_paths")
			}
		}

		if err := validateExcludedPaths(name, task.InputPaths, task.ExcludedInputPaths); err != nil {
			return err
		}
	}

	if _, err := graph.Schedule(names, func(name string) ([]string, error) {
		task, ok := t.Tasks[name]
		if !ok {
			return nil, fmt.Errorf("task %q is not defined", name)
		}
		return task.Dependencies, nil
	}); err != nil {
		return err
	}

	return nil
}

// validateExcludedPaths enforces that every excluded path lies beneath
// (or equals) some declared input path, under lexical containment.
func validateExcludedPaths(taskName string, inputPaths, excludedPaths []string) error {
	for _, excluded := range excludedPaths {
		covered := false
		for _, input := range inputPaths {
			if excluded == input || strings.HasPrefix(excluded, input+"/") {
				covered = true
				break
			}
		}
		if !covered {
			return toasterr.NewCodedError(toasterr.ErrValidation, taskName, fmt.Sprintf(
				"excludes path %q which is not beneath any declared input_paths entry", excluded,
			))
		}
	}
	return nil
}

// Roots resolves the user-supplied root task names to the scheduler's
// root set: if names is empty, it's the default task if one is set, else
// every task in the toastfile.
func (t *Toastfile) Roots(names []string) ([]string, error) {
	if len(names) > 0 {
		for _, name := range names {
			if _, ok := t.Tasks[name]; !ok {
				return nil, fmt.Errorf("task %q is not defined", name)
			}
		}
		return names, nil
	}

	if t.Default != "" {
		return []string{t.Default}, nil
	}

	all := make([]string, 0, len(t.Tasks))
	for name := range t.Tasks {
		all = append(all, name)
	}
	sort.Strings(all)
	return all, nil
}

// Schedule computes the deterministic task-name order for the given root
// set, per spec §4.4.
func (t *Toastfile) Schedule(roots []string) ([]string, error) {
	return graph.Schedule(roots, func(name string) ([]string, error) {
		task, ok := t.Tasks[name]
		if !ok {
			return nil, fmt.Errorf("task %q is not defined", name)
		}
		return task.Dependencies, nil
	})
}
