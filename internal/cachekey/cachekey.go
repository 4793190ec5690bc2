// Package cachekey derives the per-task content fingerprint described in
// spec §4.3: a chain where each task's key absorbs its predecessor's key
// (or the base image, for the first task in the schedule), then its own
// command, environment, and input-path tree.
package cachekey

import (
	"github.com/stepchowfun/toast/internal/hash"
	"github.com/stepchowfun/toast/internal/pathcollector"
	"github.com/stepchowfun/toast/internal/toastfile"
)

const (
	entryKindFile = iota
	entryKindDirectory
	entryKindSymlink
)

// Key derives the cache key for task, given the fingerprint of its
// predecessor in the schedule (or the fully-qualified base image
// reference, for the first task). toastfileDir roots the input-path
// enumeration, per spec §3's "resolved relative to the toastfile's
// containing directory" rule.
func Key(task *toastfile.ResolvedTask, predecessor string, toastfileDir string) (string, error) {
	entries, err := pathcollector.Collect(toastfileDir, task.InputPaths, task.ExcludedInputPaths)
	if err != nil {
		return "", err
	}

	fp := hash.New().
		AbsorbString(predecessor).
		AbsorbString(task.Command).
		AbsorbString(task.CommandPrefix).
		AbsorbString(task.User).
		AbsorbString(task.Location).
		AbsorbMapping(task.Environment)

	absorbEntries(fp, entries)

	fp.AbsorbSequence(task.OutputPaths)

	return fp.Sum(), nil
}

// absorbEntries absorbs the path collector's output, which is already in
// the canonical lexicographic order required for a stable key.
func absorbEntries(fp *hash.Fingerprint, entries []pathcollector.Entry) {
	fp.AbsorbUint64(uint64(len(entries)))
	for _, e := range entries {
		fp.AbsorbBytes(e.RelPath)
		fp.AbsorbUint64(uint64(kindTag(e.Kind)))
		fp.AbsorbUint64(uint64(e.Mode))
		switch e.Kind {
		case pathcollector.KindFile:
			fp.AbsorbBytes(e.Content)
		case pathcollector.KindSymlink:
			fp.AbsorbBytes(e.LinkTarget)
		}
	}
}

func kindTag(k pathcollector.Kind) int {
	switch k {
	case pathcollector.KindFile:
		return entryKindFile
	case pathcollector.KindDirectory:
		return entryKindDirectory
	case pathcollector.KindSymlink:
		return entryKindSymlink
	default:
		return entryKindFile
	}
}

