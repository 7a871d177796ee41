package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/puma/internal/ctxutil"
)

func TestLogWriterAdapter_RecordsActorAndChange(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriterAdapter(zap.New(core), "embedded")
	ctx := ctxutil.WithActorID(context.Background(), "alice")

	require.NoError(t, w.LogUpdate(ctx, "shift", "2024-05-01/alice", "job_number", "J100", "J200"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "alice", fields["actor"])
	assert.Equal(t, "embedded", fields["backend"])
	assert.Equal(t, "update", fields["action"])
	assert.Equal(t, "job_number", fields["field"])
	assert.Equal(t, "J100", fields["old"])
	assert.Equal(t, "J200", fields["new"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}

func TestLogWriterAdapter_UnknownActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriterAdapter(zap.New(core), "remote")

	require.NoError(t, w.LogCreate(context.Background(), "activity", "7"))
	require.NoError(t, w.LogDelete(context.Background(), "activity", "7"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "unknown", entries[0].ContextMap()["actor"])
	assert.Equal(t, "create", entries[0].ContextMap()["action"])
	assert.Equal(t, "delete", entries[1].ContextMap()["action"])
}
