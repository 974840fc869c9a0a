package pipeline

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// FlagsFor picks the extra flags for file from a per-operation table. An
// exact base-name key wins, then wildcard (glob or /regex/) keys, then "*".
func FlagsFor(table map[string][]string, file string) []string {
	if len(table) == 0 {
		return nil
	}
	name := stem(file)
	if flags, ok := table[name]; ok {
		return append([]string(nil), flags...)
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var matched []string
	found := false
	for _, k := range keys {
		if k == "*" || !isPattern(k) {
			continue
		}
		if matchKey(k, name) {
			matched = append(matched, table[k]...)
			found = true
		}
	}
	if found {
		return matched
	}
	if flags, ok := table["*"]; ok {
		return append([]string(nil), flags...)
	}
	return nil
}

func isPattern(key string) bool {
	return isRegexKey(key) || strings.ContainsAny(key, "*?[")
}

func isRegexKey(key string) bool {
	return len(key) > 2 && strings.HasPrefix(key, "/") && strings.HasSuffix(key, "/")
}

func matchKey(key, name string) bool {
	if isRegexKey(key) {
		re, err := regexp.Compile(key[1 : len(key)-1])
		return err == nil && re.MatchString(name)
	}
	ok, err := filepath.Match(key, name)
	return err == nil && ok
}
