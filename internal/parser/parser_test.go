package parser

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		explanation string
		code        string
		hasCode     bool
	}{
		{
			name:        "js block",
			raw:         "expl\n\n```js\ncode\n```",
			explanation: "expl",
			code:        "code",
			hasCode:     true,
		},
		{
			name:        "plain text",
			raw:         "just text",
			explanation: "just text",
		},
		{
			name:        "javascript tag with trailing prose",
			raw:         "  Use a loop.\n```javascript\nfor (;;) {}\n```\nDone.",
			explanation: "Use a loop.",
			code:        "for (;;) {}",
			hasCode:     true,
		},
		{
			name:        "untagged fence",
			raw:         "Here:\n```\nconsole.log(1)\n```",
			explanation: "Here:",
			code:        "console.log(1)",
			hasCode:     true,
		},
		{
			name:        "only first block is taken",
			raw:         "a\n```js\none\n```\nb\n```js\ntwo\n```",
			explanation: "a",
			code:        "one",
			hasCode:     true,
		},
		{
			name:        "unclosed fence",
			raw:         "intro\n```js\nlet x = 1",
			explanation: "intro",
		},
		{
			name:        "code only",
			raw:         "```js\nx()\n```",
			explanation: "",
			code:        "x()",
			hasCode:     true,
		},
		{
			name: "empty",
			raw:  "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Explanation != tt.explanation {
				t.Errorf("Explanation = %q, want %q", got.Explanation, tt.explanation)
			}
			if got.HasCode != tt.hasCode {
				t.Errorf("HasCode = %v, want %v", got.HasCode, tt.hasCode)
			}
			if got.Code != tt.code {
				t.Errorf("Code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	raw := "x\n```js\ny\n```"
	if Parse(raw) != Parse(raw) {
		t.Error("Parse should return identical results for identical input")
	}
}
