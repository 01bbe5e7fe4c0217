package srv

import (
	"context"
	"sync"
)

// cleanupService runs fn on the first Shutdown only.
type cleanupService struct {
	fn   func() error
	once sync.Once
}

func (c *cleanupService) Start(ctx context.Context) error {
	return nil
}

func (c *cleanupService) Shutdown(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		if c.fn != nil {
			err = c.fn()
		}
	})
	return err
}

func NewCleanup(fn func() error) Service {
	return &cleanupService{fn: fn}
}
