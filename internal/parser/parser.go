// Package parser splits an assistant reply into its explanation and code parts.
package parser

import (
	"regexp"
	"strings"
)

var (
	// codeBlock matches the first fenced block, optionally tagged as JavaScript.
	codeBlock = regexp.MustCompile("(?s)```(?:javascript|js)?\\s*(.*?)```")
	fence     = regexp.MustCompile("```(?:javascript|js)?")
)

// Result is a parsed assistant reply. A missing code block is a valid
// outcome, reported by HasCode being false.
type Result struct {
	Explanation string
	Code        string
	HasCode     bool
}

// Parse extracts the explanation (text before the first fence, trimmed) and
// the contents of the first fenced code block.
func Parse(raw string) Result {
	return Result{
		Explanation: Explanation(raw),
	}.withCode(raw)
}

// Explanation returns the trimmed text preceding the first fence marker, or
// the whole trimmed text when there is none.
func Explanation(raw string) string {
	if loc := fence.FindStringIndex(raw); loc != nil {
		return strings.TrimSpace(raw[:loc[0]])
	}
	return strings.TrimSpace(raw)
}

func (r Result) withCode(raw string) Result {
	m := codeBlock.FindStringSubmatch(raw)
	if m == nil {
		return r
	}
	r.Code = strings.TrimSpace(m[1])
	r.HasCode = true
	return r
}
