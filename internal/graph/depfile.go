package graph

import (
	"fmt"
	"os"
	"strings"
)

// Rule is one make-style record: targets followed by their prerequisites.
type Rule struct {
	Targets []string
	Prereqs []string
}

// ParseDependencyFile reads make-style rules from path. A missing file yields
// no rules.
func ParseDependencyFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dependency file: %w", err)
	}
	rules, err := ParseDependencies(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseDependencies parses make-style dependency rules. Lines are joined on
// backslash-newline, '#' starts a comment, "\ " is an escaped space and
// double-quoted paths keep their spaces.
func ParseDependencies(text string) ([]Rule, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\\\n", " ")

	var rules []Rule
	for lineNo, line := range strings.Split(text, "\n") {
		line = stripComment(line)
		if strings.TrimSpace(line) == "" {
			continue
		}
		words := splitWords(line)

		sep := -1
		for i, w := range words {
			if w.colon {
				sep = i
				break
			}
		}
		if sep < 0 {
			return nil, fmt.Errorf("line %d: missing ':' in rule", lineNo+1)
		}

		var r Rule
		for _, w := range words[:sep+1] {
			if w.text != "" {
				r.Targets = append(r.Targets, w.text)
			}
		}
		for _, w := range words[sep+1:] {
			if w.text != "" {
				r.Prereqs = append(r.Prereqs, w.text)
			}
		}
		if len(r.Targets) == 0 {
			return nil, fmt.Errorf("line %d: rule has no target", lineNo+1)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

type word struct {
	text  string
	colon bool // word ended the target list
}

func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

func splitWords(line string) []word {
	var (
		words   []word
		cur     strings.Builder
		inQuote bool
		colon   bool
	)
	flush := func(isColon bool) {
		if cur.Len() > 0 || isColon {
			words = append(words, word{text: cur.String(), colon: isColon})
			cur.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line) && (line[i+1] == ' ' || line[i+1] == '#' || line[i+1] == '\\'):
			cur.WriteByte(line[i+1])
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			flush(false)
		case c == ':' && !colon && isRuleColon(line, i):
			colon = true
			flush(true)
		default:
			cur.WriteByte(c)
		}
	}
	flush(false)
	return words
}

// isRuleColon distinguishes the rule separator from a drive letter such as
// C:\src or C:/src.
func isRuleColon(line string, i int) bool {
	if i+1 < len(line) && (line[i+1] == '\\' || line[i+1] == '/') {
		start := i - 1
		if start >= 0 && isLetter(line[start]) && (start == 0 || line[start-1] == ' ' || line[start-1] == '\t' || line[start-1] == '"') {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
