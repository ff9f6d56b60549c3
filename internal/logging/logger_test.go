package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBuildsBothPresets(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestForRunStampsEveryEntry(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zap.InfoLevel)
	logger := ForRun(zap.New(core), "run-0193e")

	logger.Info("starting fetch run")
	logger.Info("fetch run complete")

	require.Equal(t, 2, observed.Len())
	for _, entry := range observed.All() {
		assert.Equal(t, "run-0193e", entry.ContextMap()["run_id"])
	}
}
