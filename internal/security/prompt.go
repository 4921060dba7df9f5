package security

import (
	"regexp"
	"strings"
	"unicode"
)

// PromptInjectionResult reports what the validator found in one input.
type PromptInjectionResult struct {
	Safe     bool     // True when no injection patterns matched
	Patterns []string // Matched pattern sources, empty when safe
}

// PromptValidator screens inbound user turns for prompt injection
// before they reach the model and its tool loop. The server uses it
// for audit logging only: matches are warnings, not rejections, since
// every pattern here also appears in legitimate text.
//
// Pattern matching is best-effort. Inputs are normalized first (zero
// width and combining characters stripped, whitespace collapsed), which
// defeats simple spacing and invisible-character tricks, but homoglyph
// substitution (Cyrillic 'а' for Latin 'a' and friends) passes through
// undetected. See https://unicode.org/reports/tr39/ for what full
// confusables handling would involve.
type PromptValidator struct {
	patterns []*regexp.Regexp
}

// injectionPatterns covers the attack families observed against
// tool-calling assistants. Grouped by intent; all case-insensitive.
var injectionPatterns = []string{
	// Overriding or erasing the system prompt
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?|context)`,
	`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`,

	// Persona replacement
	`(?i)^(pretend|act|behave|imagine)\s+(you\s+are|to\s+be|as\s+if|like)`,
	`(?i)^you\s+are\s+now\s+a`,

	// Smuggled instructions and fake authority
	`(?i)^\s*(important|critical|urgent|system)\s*:\s*`,
	`(?i)^new\s+(instruction|task|rule)\s*:`,
	`(?i)^(admin|developer|debug)\s*(mode|override|command)\s*:`,

	// Escaping the conversation frame
	`(?i)\]\s*\[\s*(system|assistant|instruction|tool)`,
	`(?i)</?(system|instruction|prompt|tool_result)>`,
	`(?i)---+\s*(system|new\s+instruction)`,

	// Coercing the tool loop: forcing calls, spoofing results,
	// steering a tool at internal targets
	`(?i)(always|must|you\s+will)\s+(call|invoke|use)\s+the\s+\w+\s+tool`,
	`(?i)the\s+tool\s+(returned|responded|said)\s*:`,
	`(?i)(fetch|request|retrieve)\s+(the\s+)?(url\s+)?https?://(localhost|127\.|169\.254\.|10\.|192\.168\.)`,

	// Exfiltrating the system prompt or configuration
	`(?i)(repeat|print|reveal|show|output)\s+(your|the)\s+(system\s+prompt|instructions|initial\s+prompt|api\s+key)`,

	// Stock jailbreak phrases
	`(?i)do\s+anything\s+now`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|filter|restrictions?)`,
}

// NewPromptValidator creates a PromptValidator with the default
// pattern set.
func NewPromptValidator() *PromptValidator {
	compiled := make([]*regexp.Regexp, len(injectionPatterns))
	for i, p := range injectionPatterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return &PromptValidator{patterns: compiled}
}

// Validate normalizes input and reports every matching pattern.
func (v *PromptValidator) Validate(input string) PromptInjectionResult {
	normalized := normalizeInput(input)

	var detected []string
	for _, re := range v.patterns {
		if re.MatchString(normalized) {
			detected = append(detected, re.String())
		}
	}

	return PromptInjectionResult{
		Safe:     len(detected) == 0,
		Patterns: detected,
	}
}

// IsSafe reports whether no pattern matched.
func (v *PromptValidator) IsSafe(input string) bool {
	return v.Validate(input).Safe
}

// normalizeInput strips the characters attackers use to split pattern
// words apart: format and combining code points (zero-width spaces,
// joiners, marks) are dropped, all whitespace becomes a single space.
func normalizeInput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r):
			// dropped
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
