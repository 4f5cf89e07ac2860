package routing

import (
	"math"
	"strings"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

// complexityKeywords earn a bonus per occurrence in the last user message.
var complexityKeywords = []string{
	"analyze", "compare", "evaluate", "synthesize", "create", "design",
	"implement", "debug", "refactor", "optimize",
	"explain in detail", "step by step", "comprehensive",
}

// Complexity estimates how demanding a request is, in [0, 1]. It combines
// conversation length, total content size, tool use, system-prompt size and
// task keywords in the last user message. The score is computed once per
// request and carried on the routing decision.
func Complexity(req *providers.Request) float64 {
	var (
		total    int
		system   int
		lastUser string
	)
	for _, m := range req.Messages {
		text := m.Text()
		total += len(text)
		switch m.Role {
		case "system":
			system += len(text)
		case "user":
			lastUser = text
		}
	}

	score := math.Min(float64(len(req.Messages))/20, 0.2)
	score += math.Min(float64(total)/10000, 0.3)
	if len(req.Tools) > 0 {
		score += 0.2
	}
	score += math.Min(float64(system)/5000, 0.15)

	lower := strings.ToLower(lastUser)
	for _, kw := range complexityKeywords {
		score += 0.05 * float64(strings.Count(lower, kw))
	}

	return math.Min(score, 1.0)
}
