package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/guardflux/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := messaging.NewZapLogger(zap.New(core))

	logger.With(watermill.LogFields{"topic": "ratelimit.audit"}).
		Error("publish failed", errors.New("broker down"), watermill.LogFields{"attempt": 2})
	logger.Info("subscribed", nil)
	logger.Trace("polling", watermill.LogFields{"stream": "s"})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ratelimit.audit", fields["topic"])
	assert.Equal(t, "broker down", fields["error"])
	assert.EqualValues(t, 2, fields["attempt"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}
