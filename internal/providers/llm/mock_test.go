package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct {
	err error
}

func (f failingProvider) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return core.Message{}, f.err
}

func (f failingProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", f.err
}

func (f failingProvider) Models(ctx context.Context) ([]core.Model, error) {
	return nil, f.err
}

func TestFallbackUsesMock(t *testing.T) {
	f := NewFallback(failingProvider{err: errors.New("connection refused")}, "llama3")

	msg, err := f.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "This is a mock response from llama3. The model backend is not available.", msg.Content)

	text, err := f.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, msg.Content, text)
}

func TestFallbackKeepsContextErrors(t *testing.T) {
	f := NewFallback(failingProvider{err: context.Canceled}, "llama3")
	_, err := f.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDynamicProviderSetModel(t *testing.T) {
	cfg := &config.LLMConfig{LLMSettings: config.LLMSettings{Provider: "mock", Model: "first"}}
	d, err := NewDynamicProvider(context.Background(), cfg)
	require.NoError(t, err)

	text, err := d.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Contains(t, text, "first")

	require.NoError(t, d.SetModel(context.Background(), "second"))
	assert.Equal(t, "second", d.GetModel())

	text, err = d.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Contains(t, text, "second")
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), config.LLMSettings{Provider: "nope"})
	assert.Error(t, err)

	_, err = NewEmbedder(context.Background(), "anthropic", "x", config.LLMSettings{})
	assert.Error(t, err)
}
