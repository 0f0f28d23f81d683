// Command openai-stub is a local OpenAI-compatible server for exercising the
// collector end to end without a real model. It answers every extraction
// request with a fixed valid record that echoes the source link found in the
// user message.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		user := ""
		if len(req.Messages) > 0 {
			user = req.Messages[len(req.Messages)-1].Content
		}
		record := map[string]any{
			"valid":         true,
			"title":         "Stub Page Title",
			"summary":       "Fixed summary produced by the local extraction stub.",
			"key_points":    []string{"stub key point one", "stub key point two"},
			"code_snippets": []string{},
			"source_url":    sourceLink(user),
		}
		b, _ := json.Marshal(record)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": string(b)}},
			},
		})
	})

	log.Printf("openai-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// sourceLink pulls the "Source link: <url>" line out of the user message so
// the stub's records stay traceable like real ones.
func sourceLink(user string) string {
	for _, line := range strings.Split(user, "\n") {
		if s, ok := strings.CutPrefix(strings.TrimSpace(line), "Source link:"); ok {
			return strings.TrimSpace(s)
		}
	}
	return "https://example.com/"
}
