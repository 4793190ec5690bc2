// Package pathcollector enumerates the filesystem entries rooted at a set
// of toastfile-relative input paths, in the deterministic order required
// by spec §4.2: a lexicographic pre-order walk, with exclusions applied by
// lexical containment and symlinks recorded by target rather than
// followed.
package pathcollector

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind classifies a collected entry.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

// Entry is one collected filesystem entry. RelPath is a normalized,
// forward-slash-separated byte sequence relative to the collection root —
// not assumed to be valid UTF-8, so the cache key stays stable regardless
// of host path-separator or encoding conventions (spec §4.2's Windows
// note).
type Entry struct {
	RelPath    []byte
	Kind       Kind
	Mode       uint32
	Content    []byte
	LinkTarget []byte
}

// normalizeRelPath converts an OS path into the typed, separator-agnostic
// byte sequence used for hashing and tar-stream paths.
func normalizeRelPath(p string) []byte {
	return []byte(filepath.ToSlash(p))
}

// reducedFileMode collapses a file's permission bits down to the
// world-readable subset the container will observe: executable-by-owner
// files become 0755, everything else becomes 0644. Directories are always
// 0755. This keeps the cache key (and the tar stream built from these
// entries) independent of host umask quirks while still preserving the
// one bit that matters to a running command: whether the file is
// executable.
func reducedFileMode(info os.FileInfo) uint32 {
	if info.Mode()&0o100 != 0 {
		return 0o755
	}
	return 0o644
}

// Collect walks root (the toastfile's containing directory) for each
// path in inputPaths, producing a single deterministically ordered,
// deduplicated entry list with anything covered by excludedPaths removed.
// inputPaths and excludedPaths are toastfile-relative.
func Collect(root string, inputPaths []string, excludedPaths []string) ([]Entry, error) {
	excluded := make([]string, len(excludedPaths))
	for i, p := range excludedPaths {
		excluded[i] = filepath.ToSlash(filepath.Clean(p))
	}

	var all []Entry
	seen := map[string]bool{}

	for _, inputPath := range inputPaths {
		cleaned := filepath.ToSlash(filepath.Clean(inputPath))
		entries, err := collectOne(root, cleaned, excluded)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			key := string(e.RelPath)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, e)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return string(all[i].RelPath) < string(all[j].RelPath)
	})

	return all, nil
}

func isExcluded(relPath string, excluded []string) bool {
	for _, ex := range excluded {
		if relPath == ex || strings.HasPrefix(relPath, ex+"/") {
			return true
		}
	}
	return false
}

func collectOne(root, relPath string, excluded []string) ([]Entry, error) {
	if isExcluded(relPath, excluded) {
		return nil, nil
	}

	absPath := filepath.Join(root, filepath.FromSlash(relPath))

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(absPath)
		if err != nil {
			return nil, err
		}
		return []Entry{{
			RelPath:    normalizeRelPath(relPath),
			Kind:       KindSymlink,
			LinkTarget: []byte(filepath.ToSlash(target)),
		}}, nil

	case info.IsDir():
		entries := []Entry{{
			RelPath: normalizeRelPath(relPath),
			Kind:    KindDirectory,
			Mode:    0o755,
		}}

		children, err := os.ReadDir(absPath)
		if err != nil {
			return nil, err
		}

		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.Name()
		}
		sort.Strings(names)

		for _, name := range names {
			childRel := relPath + "/" + name
			childEntries, err := collectOne(root, childRel, excluded)
			if err != nil {
				return nil, err
			}
			entries = append(entries, childEntries...)
		}

		return entries, nil

	default:
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil, err
		}
		return []Entry{{
			RelPath: normalizeRelPath(relPath),
			Kind:    KindFile,
			Mode:    reducedFileMode(info),
			Content: content,
		}}, nil
	}
}
