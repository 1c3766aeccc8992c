package ai

import (
	"strings"

	"github.com/doeshing/termai-go/internal/domain"
)

// section markers the model is asked to emit. Emoji variants cover models
// that decorate the markers despite instructions.
var sectionPrefixes = map[string][]string{
	"suggestion": {"SUGGESTION:", "💡"},
	"warning":    {"WARNING:", "⚠️", "⚠"},
	"error":      {"ERROR:", "❌"},
}

// ParseResponse splits raw model output into suggestions, warnings, and
// errors. Content that matches no marker is kept verbatim so nothing the
// model said is ever dropped.
func ParseResponse(content string) domain.AnalysisResponse {
	resp := domain.AnalysisResponse{Content: strings.TrimSpace(content)}
	structured := 0
	total := 0

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		kind, text := classifyLine(line)
		if text == "" {
			continue
		}
		switch kind {
		case "suggestion":
			resp.Suggestions = append(resp.Suggestions, text)
			structured++
		case "warning":
			resp.Warnings = append(resp.Warnings, text)
			structured++
		case "error":
			resp.Errors = append(resp.Errors, text)
			structured++
		}
	}

	if structured == 0 && resp.Content != "" {
		fallbackParse(&resp)
	}

	resp.Confidence = confidence(structured, total, resp)
	return resp
}

func classifyLine(line string) (kind, text string) {
	for k, prefixes := range sectionPrefixes {
		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				return k, strings.TrimSpace(strings.TrimPrefix(line, p))
			}
		}
	}
	return "", line
}

// fallbackParse extracts advice from responses that ignored the marker
// format. Lines mentioning failure terms become warnings, imperative lines
// starting with common advice verbs become suggestions.
func fallbackParse(resp *domain.AnalysisResponse) {
	adviceVerbs := []string{"try ", "run ", "use ", "consider ", "check ", "install ", "add "}
	failureTerms := []string{"error", "fail", "cannot", "unable", "denied", "missing"}

	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		matched := false
		for _, v := range adviceVerbs {
			if strings.HasPrefix(lower, v) {
				resp.Suggestions = append(resp.Suggestions, line)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		for _, t := range failureTerms {
			if strings.Contains(lower, t) {
				resp.Warnings = append(resp.Warnings, line)
				break
			}
		}
	}
}

// confidence scores how well the response followed the requested structure.
func confidence(structured, total int, resp domain.AnalysisResponse) float64 {
	if resp.Content == "" {
		return 0
	}
	if total == 0 {
		return 0.1
	}
	if structured > 0 {
		score := 0.6 + 0.4*float64(structured)/float64(total)
		if score > 1 {
			score = 1
		}
		return score
	}
	if len(resp.Suggestions)+len(resp.Warnings)+len(resp.Errors) > 0 {
		return 0.4
	}
	return 0.2
}
