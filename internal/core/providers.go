package core

import "context"

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Chat(ctx context.Context, history []Message) (Message, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

type ModelLister interface {
	Models(ctx context.Context) ([]Model, error)
}

// AIProvider is a chat backend that can also list its models.
type AIProvider interface {
	Generator
	ModelLister
}
