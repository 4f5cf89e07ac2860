package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
)

// newGeminiHandler returns an http.Handler simulating the Google Gemini API.
//
// The Gemini SDK (google.golang.org/genai) communicates with:
//
//	POST {base}/models/{model}:generateContent
//	POST {base}/models/{model}:streamGenerateContent?alt=sse
//	GET  {base}/models           (list models, used by health check)
//
// where {base} defaults to https://generativelanguage.googleapis.com/v1beta.
func newGeminiHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path // e.g. /v1beta/models/gemini-2.5-pro:generateContent
		model := extractModel(path)

		switch {
		case strings.HasSuffix(path, ":generateContent"):
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
				return
			}
			applyLatency(cfg)
			if shouldError(cfg) {
				writeGeminiError(w, http.StatusInternalServerError, "mock internal error")
				return
			}
			handleGeminiGenerate(w, r, cfg, model, false)

		case strings.HasSuffix(path, ":streamGenerateContent"):
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
				return
			}
			applyLatency(cfg)
			if shouldError(cfg) {
				writeGeminiError(w, http.StatusInternalServerError, "mock internal error")
				return
			}
			handleGeminiGenerate(w, r, cfg, model, true)

		default:
			writeGeminiError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", path))
		}
	})

	// GET /v1beta/models — health check
	mux.HandleFunc("/v1beta/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []map[string]any{
				{
					"name":        "models/gemini-2.5-pro",
					"displayName": "Gemini 2.5 Pro",
					"description": "Mock Gemini 2.5 Pro",
				},
				{
					"name":        "models/gemini-2.0-flash",
					"displayName": "Gemini 2.0 Flash",
					"description": "Mock Gemini 2.0 Flash",
				},
				{
					"name":        "models/gemini-2.0-flash-lite",
					"displayName": "Gemini 2.0 Flash-Lite",
					"description": "Mock Gemini 2.0 Flash-Lite",
				},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGeminiError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

func handleGeminiGenerate(w http.ResponseWriter, r *http.Request, cfg Config, model string, stream bool) {
	id := fmt.Sprintf("gemini-%x", rand.Int64())
	content := fakeSentence(cfg.StreamWords)
	inTokens := 10
	outTokens := cfg.StreamWords

	if stream {
		serveGeminiStream(w, r, id, model, content, inTokens, outTokens)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": []any{geminiCandidate(content, "STOP")},
		"usageMetadata": map[string]int{
			"promptTokenCount":     inTokens,
			"candidatesTokenCount": outTokens,
			"totalTokenCount":      inTokens + outTokens,
		},
		"responseId":   id,
		"modelVersion": model,
	})
}

// serveGeminiStream emits one GenerateContentResponse per word. The genai
// SDK requests alt=sse and parses "data:" lines; without it the endpoint
// falls back to a JSON array, which is what curl shows.
func serveGeminiStream(w http.ResponseWriter, r *http.Request, id, model, content string, inTokens, outTokens int) {
	words := strings.Fields(content)

	chunkFor := func(text, finish string) map[string]any {
		c := map[string]any{
			"candidates":   []any{geminiCandidate(text, finish)},
			"responseId":   id,
			"modelVersion": model,
		}
		if finish != "" {
			c["usageMetadata"] = map[string]int{
				"promptTokenCount":     inTokens,
				"candidatesTokenCount": outTokens,
				"totalTokenCount":      inTokens + outTokens,
			}
		}
		return c
	}

	if r.URL.Query().Get("alt") != "sse" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]any{chunkFor(content, "STOP")})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for i, word := range words {
		finish := ""
		if i == len(words)-1 {
			finish = "STOP"
		}
		data, _ := json.Marshal(chunkFor(word+" ", finish))
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func geminiCandidate(text, finish string) map[string]any {
	c := map[string]any{
		"content": map[string]any{
			"role": "model",
			"parts": []map[string]string{
				{"text": text},
			},
		},
		"index": 0,
	}
	if finish != "" {
		c["finishReason"] = finish
	}
	return c
}

func writeGeminiError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"status":  "INTERNAL",
		},
	})
}

// extractModel pulls the model name out of a path like
// /v1beta/models/gemini-2.5-pro:generateContent
func extractModel(path string) string {
	// strip leading /v1beta/models/
	const prefix = "/v1beta/models/"
	if idx := strings.Index(path, prefix); idx >= 0 {
		rest := path[idx+len(prefix):]
		if col := strings.Index(rest, ":"); col >= 0 {
			return rest[:col]
		}
		return rest
	}
	return "gemini-2.5-pro"
}
