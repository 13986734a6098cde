// Package guard screens inbound chat messages for prompt-injection attempts
// before they reach the generation backend.
package guard

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of screening one message.
type Verdict struct {
	Blocked bool    `json:"blocked"`
	Reason  string  `json:"reason,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

type rule struct {
	pattern *regexp.Regexp
	reason  string
	weight  float64
}

// Screen is a pattern-based injection screen. A message is blocked when the
// summed weight of matching rules reaches the threshold.
type Screen struct {
	rules     []rule
	threshold float64
}

const defaultThreshold = 1.0

// NewScreen builds the default screen covering instruction-override,
// prompt-extraction, and repeat-prompt phrasings.
func NewScreen() *Screen {
	return &Screen{
		threshold: defaultThreshold,
		rules: []rule{
			{
				pattern: regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\b[\s\S]{0,40}\b(previous|prior|above|earlier|all)\b[\s\S]{0,40}\b(instruction|instructions|prompt|prompts|rule|rules|message|messages)\b`),
				reason:  "instruction override attempt",
				weight:  1.0,
			},
			{
				pattern: regexp.MustCompile(`(?i)\b(reveal|show|print|display|output|leak|expose)\b[\s\S]{0,40}\b(system prompt|initial prompt|hidden prompt|your prompt|your instructions|system message)\b`),
				reason:  "prompt extraction attempt",
				weight:  1.0,
			},
			{
				pattern: regexp.MustCompile(`(?i)\b(repeat|recite|echo|restate)\b[\s\S]{0,40}\b(everything|all|the text|the words|your instructions|your prompt)\b[\s\S]{0,40}\b(above|before|so far|verbatim)\b`),
				reason:  "repeat-prompt attempt",
				weight:  1.0,
			},
			{
				pattern: regexp.MustCompile(`(?i)\byou are now\b[\s\S]{0,60}\b(unrestricted|jailbroken|developer mode|dan)\b`),
				reason:  "role override attempt",
				weight:  1.0,
			},
			{
				pattern: regexp.MustCompile(`(?i)\b(new|updated)\s+(system\s+)?instructions?\s*:`),
				reason:  "injected instruction block",
				weight:  0.6,
			},
			{
				pattern: regexp.MustCompile(`(?i)\bpretend\b[\s\S]{0,40}\b(no|without)\b[\s\S]{0,30}\b(restrictions|rules|limits|guidelines)\b`),
				reason:  "restriction bypass attempt",
				weight:  0.6,
			},
		},
	}
}

// Check screens text and returns a verdict. Empty input is never blocked.
func (s *Screen) Check(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Verdict{}
	}

	var score float64
	var reasons []string
	for _, r := range s.rules {
		if r.pattern.MatchString(trimmed) {
			score += r.weight
			reasons = append(reasons, r.reason)
		}
	}

	if score >= s.threshold {
		return Verdict{Blocked: true, Reason: strings.Join(reasons, "; "), Score: score}
	}
	return Verdict{Score: score}
}
