package memory

import (
	"context"
	"fmt"

	"github.com/sandevgo/localrag/internal/core"
)

// Capability is the result of probing a vector backend: Active or
// Unavailable.
type Capability interface {
	capability()
}

type Active struct {
	Index core.VectorIndex
}

type Unavailable struct {
	Reason string
}

func (Active) capability()      {}
func (Unavailable) capability() {}

// Probe checks once whether index can serve requests.
func Probe(ctx context.Context, index core.VectorIndex) Capability {
	if index == nil {
		return Unavailable{Reason: "no vector backend configured"}
	}
	if err := index.Ping(ctx); err != nil {
		return Unavailable{Reason: fmt.Sprintf("%s: %v", index.Name(), err)}
	}
	if _, err := index.Dimension(ctx); err != nil {
		return Unavailable{Reason: fmt.Sprintf("%s: %v", index.Name(), err)}
	}
	return Active{Index: index}
}
