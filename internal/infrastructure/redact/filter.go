// Package redact masks secrets and strips noise from terminal text before it
// crosses the process boundary toward the inference service.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/doeshing/termai-go/internal/ports"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Filter applies an ordered set of redaction rules. Redact is pure and
// idempotent: masked output never re-matches any rule with a different
// result.
type Filter struct {
	secrets []rule
	noise   []rule
}

// maskTokens contains every replacement the filter can emit. Used to keep
// re-application stable.
var maskTokens = []string{
	"[OPENAI_KEY]", "[ANTHROPIC_KEY]", "[GITHUB_TOKEN]", "[AWS_ACCESS_KEY]",
	"[PRIVATE_KEY]", "[TOKEN]", "[PASSWORD]", "[EMAIL]", "[CREDIT_CARD]",
	"[SSN]", "[TRUNCATED]", "[REPEAT_TRUNCATED]",
}

// NewFilter builds the default rule set. Highest-priority (most specific)
// rules run first.
func NewFilter() *Filter {
	return &Filter{
		secrets: []rule{
			{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[OPENAI_KEY]"},
			{regexp.MustCompile(`sk-ant-[A-Za-z0-9-]{20,}`), "[ANTHROPIC_KEY]"},
			{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`), "[GITHUB_TOKEN]"},
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_ACCESS_KEY]"},
			{regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`), "[PRIVATE_KEY]"},
			{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/-]+=*`), "${1}[TOKEN]"},
			{regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret|password|passwd)\s*[=:]\s*)\S+`), "${1}[PASSWORD]"},
			{regexp.MustCompile(`((?:postgres(?:ql)?|mysql|mongodb|redis|amqp)://)[^:@\s]+:[^@\s]+@`), "${1}[USER]:[PASSWORD]@"},
			{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`), "[EMAIL]@${1}"},
			{regexp.MustCompile(`(\d{1,3}\.\d{1,3}\.\d{1,3}\.)\d{1,3}`), "${1}[IP]"},
			{regexp.MustCompile(`/home/[^/\s]+`), "/home/[USER]"},
			{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/[USER]"},
			{regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`), "[CREDIT_CARD]"},
			{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
		},
		noise: []rule{
			// progress-bar artifacts and long single-character runs; RE2 has
			// no backreferences, so each run character gets its own rule
			{regexp.MustCompile(`#{41,}`), "###[TRUNCATED]"},
			{regexp.MustCompile(`={41,}`), "===[TRUNCATED]"},
			{regexp.MustCompile(`-{41,}`), "---[TRUNCATED]"},
			{regexp.MustCompile(`\.{41,}`), "...[TRUNCATED]"},
			{regexp.MustCompile(`\*{41,}`), "***[TRUNCATED]"},
		},
	}
}

// Redact implements ports.Redactor.
func (f *Filter) Redact(text string) string {
	if text == "" {
		return text
	}
	for _, r := range f.secrets {
		text = r.re.ReplaceAllString(text, r.replacement)
	}
	for _, r := range f.noise {
		text = r.re.ReplaceAllString(text, r.replacement)
	}
	text = collapseRepeatedLines(text, 10)
	text = truncateLongLines(text, 500)
	return text
}

// collapseRepeatedLines keeps at most keep consecutive identical lines,
// replacing the remainder with a single marker line.
func collapseRepeatedLines(text string, keep int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= keep {
		return text
	}
	var out []string
	run := 0
	for i, line := range lines {
		if i > 0 && line == lines[i-1] && line != "" {
			run++
		} else {
			if run >= keep {
				out = append(out, "[REPEAT_TRUNCATED]")
			}
			run = 0
		}
		if run < keep {
			out = append(out, line)
		}
	}
	if run >= keep {
		out = append(out, "[REPEAT_TRUNCATED]")
	}
	return strings.Join(out, "\n")
}

// truncateLongLines caps individual lines, marking the cut. Lines already
// carrying the marker are left alone so re-application is stable.
func truncateLongLines(text string, max int) string {
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		if len(line) > max && !strings.HasSuffix(line, "[TRUNCATED]") {
			cut := max
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			lines[i] = line[:cut] + "[TRUNCATED]"
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

var _ ports.Redactor = (*Filter)(nil)
