package security

// Default PII patterns, matched against message text. Order matters: longer
// digit runs (credit cards) are matched before shorter ones so a card
// number is not partially consumed as a phone number. Replacement tokens
// ([X_REDACTED]) contain no digits or @, so masking is idempotent.
var defaultPIIPatterns = []struct {
	label   string
	pattern string
}{
	{"credit_card", `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`},
	{"ssn", `\b\d{3}-\d{2}-\d{4}\b`},
	{"phone", `\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`},
	{"email", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},
}

// Injection patterns with per-pattern confidence. Detections at or above
// highConfidence may block (depending on the configured action); the rest
// only ever produce warnings.
var defaultInjectionPatterns = []struct {
	kind       string
	confidence float64
	pattern    string
}{
	{"instruction_override", 0.9, `(?i)\b(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|directives)\b`},
	{"role_manipulation", 0.75, `(?i)\byou\s+are\s+now\s+(a|an|the)\s`},
	{"role_manipulation", 0.75, `(?i)\bpretend\s+to\s+be\b`},
	{"prompt_extraction", 0.8, `(?i)\b(show|reveal|print|repeat|display|output)\b[^.]{0,40}\b(system\s+prompt|your\s+instructions)\b`},
	{"jailbreak", 0.9, `(?i)\bDAN\b[^.]{0,60}\bdo\s+anything\s+now\b`},
	{"jailbreak", 0.85, `(?i)\bdeveloper\s+mode\s+enabled\b`},
	{"delimiter_injection", 0.7, "(?mi)^\\s*```\\s*(system|assistant|user)\\b"},
	{"delimiter_injection", 0.8, `(?i)<\|(system|assistant|user|im_start|im_end)\|>`},

	// Below the blocking threshold: annotate, never block.
	{"role_manipulation", 0.5, `(?i)\bact\s+as\s+(a|an|my)\b`},
	{"instruction_override", 0.6, `(?i)\bnew\s+instructions:\s`},
}
