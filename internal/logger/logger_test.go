package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		l, err := NewLogger(dev)
		require.NoError(t, err)
		require.NotNil(t, l.SugaredLogger)
	}
}

func TestLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("token", "USDT").Infow("page persisted", "saved", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "page persisted", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "USDT", fields["token"])
	assert.EqualValues(t, 3, fields["saved"])
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Infow("discarded", "k", "v")
	l.Errorw("discarded")
	l.Sync()
}
