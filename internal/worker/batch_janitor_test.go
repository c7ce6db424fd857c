package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/pkg/logger"
)

type countingPruner struct {
	calls   atomic.Int32
	removed int
}

func (p *countingPruner) Prune(context.Context) int {
	p.calls.Add(1)
	return p.removed
}

func TestNewBatchJanitor_Schedule(t *testing.T) {
	j, err := NewBatchJanitor(&countingPruner{}, "")
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(5*time.Minute), j.Next(base))

	j, err = NewBatchJanitor(&countingPruner{}, "*/10 * * * *")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Minute), j.Next(base))

	_, err = NewBatchJanitor(&countingPruner{}, "every now and then")
	assert.Error(t, err)
}

func TestBatchJanitor_RunOnce(t *testing.T) {
	p := &countingPruner{removed: 3}
	j, err := NewBatchJanitor(p, "@every 1h")
	require.NoError(t, err)

	assert.Equal(t, 3, j.RunOnce(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestBatchJanitor_StartStops(t *testing.T) {
	p := &countingPruner{}
	j, err := NewBatchJanitor(p, "@every 1s")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
	assert.GreaterOrEqual(t, p.calls.Load(), int32(1))
}

func TestBatchJanitor_RunOnceLogsStructured(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLevel(logger.INFO)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	j, err := NewBatchJanitor(&countingPruner{removed: 2}, "@every 1h")
	require.NoError(t, err)
	j.RunOnce(context.Background())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "batch janitor pruned expired batches", entry["message"])
	assert.Equal(t, float64(2), entry["pruned"])
}
