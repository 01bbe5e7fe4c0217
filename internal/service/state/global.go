package state

import (
	"context"

	"github.com/sandevgo/localrag/internal/core"
)

type provider interface {
	GetModel() string
	SetModel(ctx context.Context, model string) error
	Models(ctx context.Context) ([]core.Model, error)
}

// GlobalState is the runtime state shared by every transport: the active
// provider name and model.
type GlobalState struct {
	providerName string
	provider     provider
}

func NewGlobalState(
	providerName string,
	provider provider,
) *GlobalState {
	return &GlobalState{
		providerName: providerName,
		provider:     provider,
	}
}

func (s *GlobalState) CurrentModel() (string, string) {
	return s.providerName, s.provider.GetModel()
}

func (s *GlobalState) ChangeModel(ctx context.Context, model string) error {
	return s.provider.SetModel(ctx, model)
}

func (s *GlobalState) ListModels(ctx context.Context) ([]core.Model, error) {
	return s.provider.Models(ctx)
}
