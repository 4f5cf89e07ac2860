// Package security screens requests for PII and prompt-injection attempts
// before they reach any upstream provider, and scrubs configured patterns
// from responses on the way out.
package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

// Action selects what the guard does when a stage detects something.
type Action string

const (
	ActionBlock Action = "block"
	ActionMask  Action = "mask"
	ActionWarn  Action = "warn"
)

// highConfidence is the minimum injection confidence that can block a
// request. Matches below it are reported as warnings only.
const highConfidence = 0.7

// outputReplacement substitutes blocked patterns in provider output.
const outputReplacement = "[REDACTED]"

// PatternConfig is an operator-supplied PII pattern appended to the
// built-in set. The replacement token is derived from Label, so labels
// must not contain characters the pattern itself would match.
type PatternConfig struct {
	Label   string `mapstructure:"label"`
	Pattern string `mapstructure:"pattern"`
}

type Config struct {
	PIIEnabled  bool            `mapstructure:"pii_enabled"`
	PIIAction   Action          `mapstructure:"pii_action"`
	PIIPatterns []PatternConfig `mapstructure:"pii_patterns"`

	InjectionEnabled bool   `mapstructure:"injection_enabled"`
	InjectionAction  Action `mapstructure:"injection_action"`

	OutputEnabled   bool     `mapstructure:"output_enabled"`
	BlockedPatterns []string `mapstructure:"blocked_patterns"`
}

// CheckResult reports the outcome of screening one request.
type CheckResult struct {
	// Blocked means the request must not be routed. BlockedBy is "pii" or
	// "injection" and Reason is human-readable.
	Blocked   bool
	BlockedBy string
	Reason    string

	// Sanitized is a masked copy of the request when the PII action is
	// "mask" and something matched. Nil otherwise; the caller keeps using
	// the original request.
	Sanitized *providers.Request

	// PIITypes and InjectionKinds list what each stage detected regardless
	// of the configured action.
	PIITypes       []string
	InjectionKinds []string

	Warnings []string
}

type piiPattern struct {
	label       string
	re          *regexp.Regexp
	replacement string
}

type injectionPattern struct {
	kind       string
	confidence float64
	re         *regexp.Regexp
}

// Guard holds the compiled pattern sets. Compilation happens once in New;
// checking is read-only and safe for concurrent use.
type Guard struct {
	piiEnabled bool
	piiAction  Action
	pii        []piiPattern

	injectionEnabled bool
	injectionAction  Action
	injection        []injectionPattern

	outputEnabled bool
	blocked       []*regexp.Regexp
}

func New(cfg Config) (*Guard, error) {
	g := &Guard{
		piiEnabled:       cfg.PIIEnabled,
		piiAction:        cfg.PIIAction,
		injectionEnabled: cfg.InjectionEnabled,
		injectionAction:  cfg.InjectionAction,
		outputEnabled:    cfg.OutputEnabled,
	}
	if g.piiAction == "" {
		g.piiAction = ActionMask
	}
	if g.injectionAction == "" {
		g.injectionAction = ActionBlock
	}

	for _, p := range defaultPIIPatterns {
		g.pii = append(g.pii, piiPattern{
			label:       p.label,
			re:          regexp.MustCompile(p.pattern),
			replacement: maskToken(p.label),
		})
	}
	for _, p := range cfg.PIIPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("security: compile pii pattern %q: %w", p.Label, err)
		}
		g.pii = append(g.pii, piiPattern{label: p.Label, re: re, replacement: maskToken(p.Label)})
	}

	for _, p := range defaultInjectionPatterns {
		g.injection = append(g.injection, injectionPattern{
			kind:       p.kind,
			confidence: p.confidence,
			re:         regexp.MustCompile(p.pattern),
		})
	}

	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("security: compile blocked pattern %q: %w", p, err)
		}
		g.blocked = append(g.blocked, re)
	}
	return g, nil
}

func maskToken(label string) string {
	return "[" + strings.ToUpper(label) + "_REDACTED]"
}

// CheckRequest runs the PII stage and then the injection stage over all
// message text in req. Both stages scan the original text, so masking one
// never hides evidence from the other. req itself is never modified.
func (g *Guard) CheckRequest(req *providers.Request) CheckResult {
	var res CheckResult
	if g == nil {
		return res
	}

	text := requestText(req)

	if g.piiEnabled {
		found := g.detectPII(text)
		if len(found) > 0 {
			res.PIITypes = found
			switch g.piiAction {
			case ActionBlock:
				res.Blocked = true
				res.BlockedBy = "pii"
				res.Reason = "PII detected: " + strings.Join(found, ", ")
				return res
			case ActionMask:
				res.Sanitized = g.maskRequest(req)
				res.Warnings = append(res.Warnings, "pii masked: "+strings.Join(found, ", "))
			default:
				res.Warnings = append(res.Warnings, "pii detected: "+strings.Join(found, ", "))
			}
		}
	}

	if g.injectionEnabled {
		hits, maxConfidence := g.detectInjection(text)
		if len(hits) > 0 {
			res.InjectionKinds = hits
			if g.injectionAction == ActionBlock && maxConfidence >= highConfidence {
				res.Blocked = true
				res.BlockedBy = "injection"
				res.Reason = "prompt injection detected: " + strings.Join(hits, ", ")
				res.Sanitized = nil
				return res
			}
			res.Warnings = append(res.Warnings, "possible prompt injection: "+strings.Join(hits, ", "))
		}
	}

	return res
}

// SanitizeOutput replaces configured blocked patterns in provider output
// and reports one warning per pattern that matched.
func (g *Guard) SanitizeOutput(content string) (string, []string) {
	if g == nil || !g.outputEnabled || len(g.blocked) == 0 {
		return content, nil
	}
	var warnings []string
	for _, re := range g.blocked {
		if !re.MatchString(content) {
			continue
		}
		content = re.ReplaceAllString(content, outputReplacement)
		warnings = append(warnings, "output pattern redacted: "+re.String())
	}
	return content, warnings
}

// detectPII returns the labels that matched, deduplicated, in pattern
// order.
func (g *Guard) detectPII(text string) []string {
	var found []string
	for _, p := range g.pii {
		if p.re.MatchString(text) {
			found = appendUnique(found, p.label)
		}
	}
	return found
}

// detectInjection returns the kinds that matched, deduplicated in pattern
// order, along with the highest confidence seen.
func (g *Guard) detectInjection(text string) ([]string, float64) {
	var (
		kinds []string
		max   float64
	)
	for _, p := range g.injection {
		if !p.re.MatchString(text) {
			continue
		}
		kinds = appendUnique(kinds, p.kind)
		if p.confidence > max {
			max = p.confidence
		}
	}
	return kinds, max
}

// maskRequest returns a deep copy of req with every PII pattern replaced
// in message content and text blocks. Non-text blocks pass through
// untouched.
func (g *Guard) maskRequest(req *providers.Request) *providers.Request {
	masked := req.Clone()
	for i := range masked.Messages {
		masked.Messages[i].Content = g.maskText(masked.Messages[i].Content)
		for j := range masked.Messages[i].Blocks {
			if masked.Messages[i].Blocks[j].Type == "text" {
				masked.Messages[i].Blocks[j].Text = g.maskText(masked.Messages[i].Blocks[j].Text)
			}
		}
	}
	return masked
}

func (g *Guard) maskText(text string) string {
	if text == "" {
		return text
	}
	for _, p := range g.pii {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// requestText flattens all message text into one scan target. Joining
// with newlines keeps line-anchored delimiter patterns working across
// message boundaries.
func requestText(req *providers.Request) string {
	var b strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Text())
	}
	return b.String()
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
