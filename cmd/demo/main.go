// Command demo is the minimal composition root proving entitycore's fx
// wiring boots end to end, grounded in the teacher's
// cmd/server/main.go (fx.New + fx.WithLogger(fxevent.SlogLogger) idiom).
// It registers one function and executes it once at startup — a smoke test
// for the DI graph with no server endpoints (the core spec has no wire
// protocol, §1 Non-goals); fx's Run then keeps the process up until it
// receives a shutdown signal.
package main

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/furlat/Abstractions-sub003/internal/config"
	"github.com/furlat/Abstractions-sub003/pkg/callable"
	"github.com/furlat/Abstractions-sub003/pkg/entitycore"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
	"github.com/furlat/Abstractions-sub003/pkg/maintenance"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

type greetKwargs struct {
	Name string
}

func greet(kwargs greetKwargs) (*record.Record, error) {
	return record.NewRecord("Greeting", map[string]any{
		"message": "hello, " + kwargs.Name,
	}), nil
}

func registerDemoFunctions(registry *callable.Registry) error {
	return registry.Register("greet", greet, callable.RegisterOptions{})
}

func runDemo(lc fx.Lifecycle, registry *callable.Registry, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			results, err := registry.Execute(ctx, "greet", map[string]any{"name": "world"})
			if err != nil {
				return err
			}
			log.Info("demo execution complete", slog.Any("payload", results[0].Payload))
			return nil
		},
	})
}

func main() {
	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		logger.Module,
		config.Module,
		entitycore.Module,
		maintenance.Module,

		fx.Invoke(registerDemoFunctions, runDemo),
	).Run()
}
