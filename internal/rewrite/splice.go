package rewrite

import (
	"regexp"
	"strings"
)

// spliceValues rewrites one captured value per match of re: the first
// participating group at or after index from. Group 1 is passed as name when
// from is greater than 1. Bytes outside the rewritten values are preserved,
// which keeps quotes and surrounding markup intact.
func spliceValues(text string, re *regexp.Regexp, from int, fn func(name, value string) (string, bool)) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var (
		b       strings.Builder
		last    int
		changed bool
	)
	for _, m := range matches {
		name := ""
		if from > 1 && m[2] >= 0 {
			name = text[m[2]:m[3]]
		}
		start, end := -1, -1
		for g := from; 2*g+1 < len(m); g++ {
			if m[2*g] >= 0 {
				start, end = m[2*g], m[2*g+1]
				break
			}
		}
		if start < 0 {
			continue
		}
		value := text[start:end]
		repl, ok := fn(name, value)
		if !ok || repl == value {
			continue
		}
		if !changed {
			b.Grow(len(text))
		}
		b.WriteString(text[last:start])
		b.WriteString(repl)
		last = end
		changed = true
	}
	if !changed {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}
