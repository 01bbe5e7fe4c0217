package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmbeddingResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    [][]float32
		wantErr bool
	}{
		{
			name: "ollama batch",
			raw:  `{"model":"nomic-embed-text","embeddings":[[0.1,0.2],[0.3,0.4]]}`,
			want: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		},
		{
			name: "legacy single",
			raw:  `{"embedding":[1,2,3]}`,
			want: [][]float32{{1, 2, 3}},
		},
		{
			name: "openai data out of order",
			raw:  `{"object":"list","data":[{"index":1,"embedding":[0.5]},{"index":0,"embedding":[0.25]}]}`,
			want: [][]float32{{0.25}, {0.5}},
		},
		{
			name:    "no vectors",
			raw:     `{"model":"x"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `<html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeEmbeddingResponse([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeGenerationResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"ollama generate", `{"model":"llama3","response":"Hi there","done":true}`, "Hi there", false},
		{"ollama chat", `{"message":{"role":"assistant","content":"Hello"},"done":true}`, "Hello", false},
		{"openai chat", `{"choices":[{"index":0,"message":{"role":"assistant","content":"Yes"}}]}`, "Yes", false},
		{"openai completion", `{"choices":[{"index":0,"text":"plain"}]}`, "plain", false},
		{"empty response is valid", `{"response":""}`, "", false},
		{"error body", `{"error":"model not found"}`, "", true},
		{"unknown shape", `{"foo":1}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeGenerationResponse([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
