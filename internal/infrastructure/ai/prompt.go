package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/doeshing/termai-go/internal/domain"
)

const responseFormat = `Respond with short lines using these prefixes:
SUGGESTION: <a concrete next command or fix>
WARNING: <a risk the user should know about>
ERROR: <the root cause, if one is identifiable>
Keep each line under 100 characters. At most 3 lines per prefix.`

// BuildPrompt renders the prompt for an analysis request according to the
// trigger that raised it.
func BuildPrompt(req domain.AnalysisRequest) string {
	switch req.Trigger.Kind {
	case domain.TriggerError:
		return errorPrompt(req.Payload)
	case domain.TriggerManual:
		return manualPrompt(req.Payload)
	case domain.TriggerPattern, domain.TriggerKeyword:
		// destructive-command rules sit at the top of the priority range
		if req.Payload.Subject.Kind == domain.KindDangerous || req.Trigger.Priority >= 9 {
			return dangerousPrompt(req.Payload)
		}
		return outputPrompt(req.Payload)
	default:
		return outputPrompt(req.Payload)
	}
}

func errorPrompt(p domain.ContextPayload) string {
	var b strings.Builder
	b.WriteString("A shell command just failed. Diagnose it.\n\n")
	writeSession(&b, p)
	writeSubject(&b, p)
	writeRecent(&b, p)
	b.WriteString("\nExplain the most likely cause and how to fix it.\n")
	b.WriteString(responseFormat)
	return b.String()
}

func dangerousPrompt(p domain.ContextPayload) string {
	var b strings.Builder
	b.WriteString("The user ran a command that can destroy data or break the system.\n\n")
	writeSession(&b, p)
	writeSubject(&b, p)
	writeRecent(&b, p)
	b.WriteString("\nState what the command does, what it puts at risk, and a safer alternative if one exists.\n")
	b.WriteString(responseFormat)
	return b.String()
}

func outputPrompt(p domain.ContextPayload) string {
	var b strings.Builder
	b.WriteString("Review this terminal activity and point out anything actionable.\n\n")
	writeSession(&b, p)
	writeRecent(&b, p)
	b.WriteString("\nOnly mention things worth the user's attention. Say nothing if all is routine.\n")
	b.WriteString(responseFormat)
	return b.String()
}

func manualPrompt(p domain.ContextPayload) string {
	var b strings.Builder
	b.WriteString("The user asked for help with their current terminal session.\n\n")
	writeSession(&b, p)
	if p.Manual != "" {
		fmt.Fprintf(&b, "Their question: %s\n\n", p.Manual)
	}
	writeRecent(&b, p)
	b.WriteString("\nSuggest the most useful next steps.\n")
	b.WriteString(responseFormat)
	return b.String()
}

func writeSession(b *strings.Builder, p domain.ContextPayload) {
	if p.Summary != "" {
		fmt.Fprintf(b, "Session: %s\n\n", p.Summary)
	}
}

func writeSubject(b *strings.Builder, p domain.ContextPayload) {
	if p.Subject.Command == "" {
		return
	}
	fmt.Fprintf(b, "Command: %s (exit %d)\n", p.Subject.Command, p.Subject.ExitCode)
	if out := strings.TrimSpace(p.Subject.Output); out != "" {
		b.WriteString(indent(truncate(out, 1000)))
		b.WriteString("\n")
	}
	if errText := strings.TrimSpace(p.Subject.ErrorText); errText != "" {
		b.WriteString(indent(truncate(errText, 600)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeRecent(b *strings.Builder, p domain.ContextPayload) {
	if len(p.Entries) == 0 {
		return
	}
	b.WriteString("Recent commands:\n")
	for _, e := range p.Entries {
		fmt.Fprintf(b, "$ %s (exit %d)\n", e.Record.Command, e.Record.ExitCode)
		if out := strings.TrimSpace(e.Record.Output); out != "" {
			b.WriteString(indent(truncate(out, 600)))
			b.WriteString("\n")
		}
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

// truncate caps s at max bytes, backing up to a rune boundary so the cut
// never produces invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "…"
}
