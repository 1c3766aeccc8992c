package ai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/doeshing/termai-go/internal/domain"
)

func payloadWith(subject domain.CommandRecord) domain.ContextPayload {
	return domain.ContextPayload{
		Entries: []domain.ContextEntry{{Record: subject, Relevance: 0.9}},
		Summary: "Session running for 5 minutes. 1 of 1 commands failed.",
		Subject: subject,
	}
}

func TestErrorPromptCarriesCommandAndOutput(t *testing.T) {
	subject := domain.CommandRecord{
		Command:   "git push origin main",
		ExitCode:  1,
		Output:    "error: failed to push some refs",
		ErrorText: "error: failed to push some refs",
	}
	req := domain.AnalysisRequest{
		Trigger: domain.Trigger{Kind: domain.TriggerError},
		Payload: payloadWith(subject),
	}

	prompt := BuildPrompt(req)
	if !strings.Contains(prompt, "git push origin main") {
		t.Fatalf("prompt missing command:\n%s", prompt)
	}
	if !strings.Contains(prompt, "failed to push") {
		t.Fatalf("prompt missing output:\n%s", prompt)
	}
	if !strings.Contains(prompt, "SUGGESTION:") {
		t.Fatalf("prompt missing response format:\n%s", prompt)
	}
}

func TestDangerousPromptSelectedByPriority(t *testing.T) {
	subject := domain.CommandRecord{Command: "sudo rm -rf /var", ExitCode: 0, Kind: domain.KindDangerous}
	req := domain.AnalysisRequest{
		Trigger: domain.Trigger{Kind: domain.TriggerPattern, Priority: 9, Description: "Sudo recursive delete"},
		Payload: payloadWith(subject),
	}
	prompt := BuildPrompt(req)
	if !strings.Contains(prompt, "destroy data") {
		t.Fatalf("want the risk framing for dangerous patterns:\n%s", prompt)
	}
}

func TestManualPromptCarriesQuestion(t *testing.T) {
	payload := payloadWith(domain.CommandRecord{Command: "make test", ExitCode: 0})
	payload.Manual = "why is the build slow"
	req := domain.AnalysisRequest{
		Trigger: domain.Trigger{Kind: domain.TriggerManual},
		Payload: payload,
	}
	prompt := BuildPrompt(req)
	if !strings.Contains(prompt, "why is the build slow") {
		t.Fatalf("prompt missing the user question:\n%s", prompt)
	}
}

func TestLongOutputTruncated(t *testing.T) {
	subject := domain.CommandRecord{
		Command:  "cat big.log",
		ExitCode: 1,
		Output:   strings.Repeat("x", 5000),
	}
	req := domain.AnalysisRequest{
		Trigger: domain.Trigger{Kind: domain.TriggerError},
		Payload: payloadWith(subject),
	}
	prompt := BuildPrompt(req)
	if len(prompt) > 4000 {
		t.Fatalf("prompt length = %d, output not truncated", len(prompt))
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	in := strings.Repeat("é", 400) // 2 bytes per rune, 601 splits one
	got := truncate(in, 601)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got[len(got)-8:])
	}
	if len(got) > 601+len("…") {
		t.Fatalf("truncated length = %d", len(got))
	}
}
