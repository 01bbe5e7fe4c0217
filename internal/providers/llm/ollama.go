package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sandevgo/localrag/internal/core"
)

// Ollama talks to the native Ollama API.
type Ollama struct {
	baseProvider
}

func NewOllama(baseURL, apiKey, model string) *Ollama {
	return &Ollama{
		baseProvider: newBaseProvider(baseURL, apiKey, model),
	}
}

func (o *Ollama) headers() map[string]string {
	if o.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

func (o *Ollama) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	payload := map[string]any{
		"model":    o.model,
		"messages": history,
		"stream":   false,
	}

	raw, err := o.doJSON(ctx, http.MethodPost, "/api/chat", payload, o.headers())
	if err != nil {
		return core.Message{}, err
	}

	text, err := normalizeGenerationResponse(raw)
	if err != nil {
		return core.Message{}, err
	}
	return core.Message{Role: core.RoleAssistant, Content: text}, nil
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}

	raw, err := o.doJSON(ctx, http.MethodPost, "/api/generate", payload, o.headers())
	if err != nil {
		return "", err
	}
	return normalizeGenerationResponse(raw)
}

// Embed uses the batch /api/embed endpoint.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"model": o.model,
		"input": texts,
	}

	raw, err := o.doJSON(ctx, http.MethodPost, "/api/embed", payload, o.headers())
	if err != nil {
		return nil, err
	}

	vectors, err := normalizeEmbeddingResponse(raw)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (o *Ollama) Models(ctx context.Context) ([]core.Model, error) {
	resp, err := o.doRequest(ctx, http.MethodGet, "/api/tags", nil, o.headers())
	if err != nil {
		return nil, fmt.Errorf("ollama not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	models := make([]core.Model, 0, len(result.Models))
	for _, m := range result.Models {
		models = append(models, core.Model{
			ID:            m.Name,
			Name:          m.Name,
			ContextLength: 32768,
		})
	}
	return models, nil
}

// PullProgress is one status line of a streaming /api/pull.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// Pull downloads model into the Ollama server, reporting progress lines as
// they arrive.
func (o *Ollama) Pull(ctx context.Context, model string, onProgress func(PullProgress)) error {
	body, err := json.Marshal(map[string]any{"model": model, "stream": true})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range o.headers() {
		req.Header.Set(k, v)
	}

	// Pulls outlive the regular request timeout.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read pull progress: %w", err)
		}
		if p.Error != "" {
			return fmt.Errorf("pull %s: %s", model, p.Error)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
}
