package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
)

const (
	addPrefix    = "+:"
	removePrefix = "-:"
)

// splitModifier strips a +: or -: aggregation prefix.
func splitModifier(entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	switch {
	case strings.HasPrefix(entry, removePrefix):
		return strings.TrimSpace(entry[len(removePrefix):]), false
	case strings.HasPrefix(entry, addPrefix):
		return strings.TrimSpace(entry[len(addPrefix):]), true
	}
	return entry, true
}

func hasGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// collectPaths expands directory entries (globs, dir/** recursion, +:/-:
// revisions) into a sorted, de-duplicated list of absolute directories.
func collectPaths(root string, entries []string) []string {
	set := treeset.NewWithStringComparator()
	for _, raw := range entries {
		entry, add := splitModifier(raw)
		if entry == "" {
			continue
		}
		dirs := expandDirs(root, entry)
		for _, d := range dirs {
			if add {
				set.Add(d)
			} else {
				set.Remove(d)
			}
		}
	}
	return setStrings(set)
}

func expandDirs(root, entry string) []string {
	abs := absPath(root, entry)
	recursive := false
	if strings.HasSuffix(abs, string(filepath.Separator)+"**") || strings.HasSuffix(abs, "/**") {
		recursive = true
		abs = filepath.Dir(abs)
	}

	var bases []string
	if hasGlob(abs) {
		matches, _ := filepath.Glob(abs)
		bases = matches
	} else {
		bases = []string{abs}
	}

	var out []string
	for _, base := range bases {
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			if !hasGlob(abs) && !recursive {
				// Plain directories are kept even before they exist so that
				// generated paths such as the mock directory still resolve.
				out = append(out, filepath.Clean(base))
			}
			continue
		}
		out = append(out, filepath.Clean(base))
		if !recursive {
			continue
		}
		_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && path != base {
				out = append(out, path)
			}
			return nil
		})
	}
	return out
}

// collectFiles gathers files with ext from dirs, then applies explicit file
// entries from the files section (globs and +:/-: revisions).
func collectFiles(root string, dirs []string, pattern string, revisions []string) []string {
	set := treeset.NewWithStringComparator()
	for _, dir := range dirs {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				set.Add(m)
			}
		}
	}
	for _, raw := range revisions {
		entry, add := splitModifier(raw)
		if entry == "" {
			continue
		}
		abs := absPath(root, entry)
		matches := []string{abs}
		if hasGlob(abs) {
			matches, _ = filepath.Glob(abs)
		}
		for _, m := range matches {
			if add {
				set.Add(filepath.Clean(m))
			} else {
				set.Remove(filepath.Clean(m))
			}
		}
	}
	return setStrings(set)
}

func absPath(root, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func setStrings(set *treeset.Set) []string {
	values := set.Values()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.(string))
	}
	return out
}

// union concatenates lists keeping first occurrences only.
func union(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// deriveCollections computes every collection_* list.
func deriveCollections(root string, s Settings, mockPath string) map[string][]string {
	c := map[string][]string{}

	pathKeys := make([]string, 0, len(s.Paths))
	for k := range s.Paths {
		pathKeys = append(pathKeys, k)
	}
	sort.Strings(pathKeys)
	for _, k := range pathKeys {
		c["collection_paths_"+k] = collectPaths(root, s.Paths[k])
	}

	test := c["collection_paths_test"]
	source := c["collection_paths_source"]
	include := c["collection_paths_include"]
	support := c["collection_paths_support"]
	vendor := c["collection_paths_vendor"]
	if s.Project.UseMocks && mockPath != "" {
		vendor = union(vendor, []string{mockPath})
	}

	ext := s.Extension
	c["collection_paths_test_support_source_include"] = union(test, support, source, include)
	c["collection_paths_test_support_source_include_vendor"] = union(test, support, source, include, vendor)
	c["collection_paths_source_and_include"] = union(source, include)
	c["collection_paths_source_include_vendor"] = union(source, include, c["collection_paths_vendor"])

	c["collection_all_tests"] = collectFiles(root, test, s.Project.TestFilePrefix+"*"+ext.Source, s.Files["test"])
	c["collection_all_source"] = collectFiles(root, source, "*"+ext.Source, s.Files["source"])
	c["collection_all_support"] = collectFiles(root, support, "*"+ext.Source, s.Files["support"])
	c["collection_all_headers"] = collectFiles(root, union(test, support, source, include), "*"+ext.Header, s.Files["include"])
	if s.ReleaseBuild.UseAssembly {
		c["collection_all_assembly"] = collectFiles(root, source, "*"+ext.Assembly, s.Files["assembly"])
	} else {
		c["collection_all_assembly"] = []string{}
	}

	vendorDefines := append([]string(nil), s.Defines.Vendor...)
	if s.Project.UseMocks {
		vendorDefines = append(vendorDefines, s.Mocks.Defines...)
	}
	c["collection_defines_test_and_vendor"] = union(s.Defines.Test, vendorDefines)
	c["collection_defines_release_and_vendor"] = union(s.Defines.Release, s.Defines.Vendor)

	links := make([]string, 0, len(s.TestFixture.LinkObjects))
	for _, l := range s.TestFixture.LinkObjects {
		base := strings.TrimSuffix(filepath.Base(l), filepath.Ext(l))
		links = append(links, base+ext.Object)
	}
	c["collection_test_fixture_extra_link_objects"] = links

	for k, v := range c {
		if v == nil {
			c[k] = []string{}
		}
	}
	return c
}
