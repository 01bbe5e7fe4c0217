package srv

import (
	"context"

	"github.com/sandevgo/localrag/pkg/log"
)

type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

func StartServices(ctx context.Context, services []Service) {
	logger := log.FromCtx(ctx)
	for _, service := range services {
		go func(service Service) {
			if err := service.Start(ctx); err != nil {
				logger.Fatal().Err(err).Msgf("%T failed to start", service)
			}
		}(service)
	}
}

func ShutdownServices(ctx context.Context, services []Service) {
	<-ctx.Done()
	StopServices(ctx, services)
}

// StopServices shuts services down in reverse order of registration, so
// storage registered first is closed last.
func StopServices(ctx context.Context, services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Shutdown(ctx); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msgf("%T failed to shutdown", services[i])
		}
	}
}

// Foreground wraps an interactive service whose return ends the process.
// stop is called once Start returns.
func Foreground(service Service, stop func()) Service {
	return &foreground{Service: service, stop: stop}
}

type foreground struct {
	Service
	stop func()
}

func (f *foreground) Start(ctx context.Context) error {
	defer f.stop()
	err := f.Service.Start(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
