package routing

import (
	"math"
	"strings"
	"testing"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

func wantComplexity(t *testing.T, req *providers.Request, want float64) {
	t.Helper()
	got := Complexity(req)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Complexity = %v, want %v", got, want)
	}
}

func TestComplexityShortMessage(t *testing.T) {
	req := userRequest("hi")
	// 1/20 messages + 2/10000 chars.
	wantComplexity(t, req, 0.05+0.0002)
	if Complexity(req) >= 0.1 {
		t.Error("trivial request should score below 0.1")
	}
}

func TestComplexityKeywordsPerOccurrence(t *testing.T) {
	req := userRequest("analyze this, then analyze it again")
	want := 0.05 + float64(len(req.Messages[0].Content))/10000 + 2*0.05
	wantComplexity(t, req, want)
}

func TestComplexityKeywordsOnlyInLastUserMessage(t *testing.T) {
	req := &providers.Request{Messages: []providers.Message{
		{Role: "user", Content: "analyze the logs"},
		{Role: "assistant", Content: "done"},
		{Role: "user", Content: "thanks"},
	}}
	total := len("analyze the logs") + len("done") + len("thanks")
	wantComplexity(t, req, 3.0/20+float64(total)/10000)
}

func TestComplexityToolPresence(t *testing.T) {
	req := userRequest("hi")
	req.Tools = []providers.ToolDef{{Name: "search"}}
	wantComplexity(t, req, 0.05+0.0002+0.2)
}

func TestComplexitySystemPromptCapped(t *testing.T) {
	system := strings.Repeat("a", 6000)
	req := &providers.Request{Messages: []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: "hi"},
	}}
	// System text counts toward the total-length term too.
	wantComplexity(t, req, 2.0/20+0.3+0.15)
}

func TestComplexityMessageCountCapped(t *testing.T) {
	req := &providers.Request{}
	for i := 0; i < 25; i++ {
		req.Messages = append(req.Messages, providers.Message{Role: "user", Content: "x"})
	}
	wantComplexity(t, req, 0.2+25.0/10000)
}

func TestComplexityCappedAtOne(t *testing.T) {
	req := userRequest(strings.Repeat("analyze compare evaluate synthesize design ", 10))
	if got := Complexity(req); got != 1.0 {
		t.Errorf("Complexity = %v, want 1.0", got)
	}
}

func TestComplexityReadsTextBlocks(t *testing.T) {
	req := &providers.Request{Messages: []providers.Message{
		{Role: "user", Blocks: []providers.ContentBlock{
			{Type: "text", Text: "debug this"},
			{Type: "image", Data: "ignored"},
		}},
	}}
	wantComplexity(t, req, 0.05+float64(len("debug this"))/10000+0.05)
}
