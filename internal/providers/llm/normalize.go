package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var errEmptyResponse = errors.New("response carries no usable content")

// normalizeEmbeddingResponse accepts the Ollama batch shape
// {"embeddings": [[...]]}, the legacy {"embedding": [...]} shape and the
// OpenAI {"data": [{"index", "embedding"}]} shape.
func normalizeEmbeddingResponse(raw []byte) ([][]float32, error) {
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
		Embedding  []float32   `json:"embedding"`
		Data       []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	switch {
	case len(resp.Embeddings) > 0:
		return resp.Embeddings, nil
	case len(resp.Embedding) > 0:
		return [][]float32{resp.Embedding}, nil
	case len(resp.Data) > 0:
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		out := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			out[i] = d.Embedding
		}
		return out, nil
	default:
		return nil, fmt.Errorf("embedding: %w", errEmptyResponse)
	}
}

// normalizeGenerationResponse accepts Ollama generate ("response"), Ollama
// chat ("message.content") and OpenAI ("choices[0].message.content" or
// "choices[0].text") bodies.
func normalizeGenerationResponse(raw []byte) (string, error) {
	var resp struct {
		Response *string `json:"response"`
		Message  *struct {
			Content string `json:"content"`
		} `json:"message"`
		Choices []struct {
			Message *struct {
				Content string `json:"content"`
			} `json:"message"`
			Text *string `json:"text"`
		} `json:"choices"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}

	switch {
	case resp.Response != nil:
		return *resp.Response, nil
	case resp.Message != nil:
		return resp.Message.Content, nil
	case len(resp.Choices) > 0:
		c := resp.Choices[0]
		if c.Message != nil {
			return c.Message.Content, nil
		}
		if c.Text != nil {
			return *c.Text, nil
		}
	}
	if resp.Error != "" {
		return "", fmt.Errorf("generation failed: %s", resp.Error)
	}
	return "", fmt.Errorf("generation: %w", errEmptyResponse)
}
