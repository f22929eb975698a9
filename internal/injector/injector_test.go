package injector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/jackal/internal/config"
)

func TestInitializeEngine(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "silent"

	e, err := InitializeEngine(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, e.ID())
	require.NotNil(t, e.Events())
	require.Nil(t, e.Devtools())
	require.NoError(t, e.Close())
}
