// Package places rewrites spoken place names into queries a geocoder can
// resolve, using a small user-maintained alias file.
//
// Each non-empty line is one rule:
//
//	home => 1050 Benton St, Santa Clara 95050
//	s/\bten fifty\b/1050/g
//
// Lines starting with # are comments. Literal aliases match whole words,
// case-insensitively. Sed-style rules accept the i, g, m and s flags.
package places

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

const defaultIterationLimit = 30

type rule interface {
	rewrite(input string) (string, bool)
}

// Aliases applies place rules until the text stops changing.
type Aliases struct {
	rules []rule
	limit int
}

// Load reads the alias file at path. An empty path or a missing file yields
// an Aliases with no rules.
func Load(path string, limit int, logger *log.Logger) (*Aliases, error) {
	if limit <= 0 {
		limit = defaultIterationLimit
	}
	if strings.TrimSpace(path) == "" {
		return &Aliases{limit: limit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if logger != nil {
				logger.Debug("no place alias file", "path", path)
			}
			return &Aliases{limit: limit}, nil
		}
		return nil, fmt.Errorf("read place aliases %q: %w", path, err)
	}

	rules, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("parse place aliases %q: %w", path, err)
	}
	if logger != nil {
		logger.Info("loaded place aliases", "path", path, "rules", len(rules.rules))
	}
	rules.limit = limit
	return rules, nil
}

// Parse compiles alias rules from text.
func Parse(contents string) (*Aliases, error) {
	aliases := &Aliases{limit: defaultIterationLimit}
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rule
			err error
		)
		switch {
		case isSedRule(line):
			r, err = parseSedRule(line)
		case strings.Contains(line, "=>"):
			r, err = parseAlias(line)
		default:
			err = errors.New("expected \"name => place\" or s/pattern/replacement/")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		aliases.rules = append(aliases.rules, r)
	}
	return aliases, nil
}

// Len reports how many rules are loaded.
func (a *Aliases) Len() int {
	return len(a.rules)
}

// Apply rewrites text. It never fails; the error is part of the rewriter
// contract shared with other query rewriters.
func (a *Aliases) Apply(text string) (string, error) {
	result := text
	for pass := 0; pass < a.limit && len(a.rules) > 0; pass++ {
		changed := false
		for _, r := range a.rules {
			if next, ok := r.rewrite(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.Join(strings.Fields(result), " "), nil
}

type aliasRule struct {
	re    *regexp.Regexp
	place string
}

func parseAlias(line string) (rule, error) {
	name, place, _ := strings.Cut(line, "=>")
	name = strings.TrimSpace(name)
	place = strings.TrimSpace(place)
	if name == "" {
		return nil, errors.New("alias name cannot be empty")
	}

	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid alias name: %w", err)
	}
	return aliasRule{re: re, place: place}, nil
}

func (r aliasRule) rewrite(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.place)
	return output, output != input
}

type sedRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func isSedRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func parseSedRule(line string) (rule, error) {
	delim := line[1]

	pattern, pos, err := readUntil(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	replacement, pos, err := readUntil(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("replacement: %w", err)
	}

	// Place names are matched case-insensitively unless the rule says otherwise.
	modifiers := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			modifiers += string(flag)
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + modifiers + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return sedRule{re: re, replacement: replacement, global: global}, nil
}

func (r sedRule) rewrite(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// readUntil returns the text up to the next unescaped delim, keeping escapes
// so the regexp engine sees them.
func readUntil(line string, start int, delim byte) (string, int, error) {
	var b strings.Builder
	escaped := false
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordOrSpace(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == ' ' || c == '\t'
}
