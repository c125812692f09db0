package entitycore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/furlat/Abstractions-sub003/internal/config"
	"github.com/furlat/Abstractions-sub003/pkg/callable"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

type pingKwargs struct {
	Name string
}

func ping(kwargs pingKwargs) (*record.Record, error) {
	return record.NewRecord("Pong", map[string]any{"greeted": kwargs.Name}), nil
}

func TestModuleWiresAWorkingRegistryEndToEnd(t *testing.T) {
	var registry *callable.Registry

	app := fxtest.New(t,
		logger.Module,
		config.Module,
		Module,
		fx.Populate(&registry),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NoError(t, registry.Register("ping", ping, callable.RegisterOptions{}))

	results, err := registry.Execute(context.Background(), "ping", map[string]any{"name": "fx"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "fx", results[0].Payload["greeted"])
}
