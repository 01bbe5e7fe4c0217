package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
)

// DynamicProvider lets the model be switched at runtime. Every provider it
// builds falls back to mock responses when the backend is down.
type DynamicProvider struct {
	config  *config.LLMConfig
	current atomic.Value
	mu      sync.Mutex
}

func NewDynamicProvider(ctx context.Context, cfg *config.LLMConfig) (*DynamicProvider, error) {
	d := &DynamicProvider{
		config: cfg,
	}

	provider, err := d.build(ctx, cfg.Settings())
	if err != nil {
		return nil, fmt.Errorf("failed to create initial provider: %w", err)
	}

	d.current.Store(provider)
	return d, nil
}

func (d *DynamicProvider) build(ctx context.Context, settings config.LLMSettings) (core.AIProvider, error) {
	provider, err := NewProvider(ctx, settings)
	if err != nil {
		return nil, err
	}
	return NewFallback(provider, settings.Model), nil
}

func (d *DynamicProvider) provider() core.AIProvider {
	return d.current.Load().(core.AIProvider)
}

func (d *DynamicProvider) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return d.provider().Chat(ctx, history)
}

func (d *DynamicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return d.provider().Generate(ctx, prompt)
}

func (d *DynamicProvider) Models(ctx context.Context) ([]core.Model, error) {
	return d.provider().Models(ctx)
}

func (d *DynamicProvider) GetModel() string {
	return d.config.GetModel()
}

func (d *DynamicProvider) SetModel(ctx context.Context, model string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	settings := d.config.Settings()
	settings.Model = model

	newProvider, err := d.build(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	if err := d.config.SetModel(model); err != nil {
		return err
	}

	// Atomic swap
	d.current.Store(newProvider)
	return nil
}
