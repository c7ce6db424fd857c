package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/config"
	"github.com/ignite/textdispatch/internal/dispatch"
	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/distlock"
	"github.com/ignite/textdispatch/internal/service/batch"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Storage.LocalPath = filepath.Join(dir, "logs")
	cfg.ChatDB.Path = filepath.Join(dir, "chat.db")
	cfg.Sender.Type = "none"
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.MemoryRepo)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &distlock.LocalLock{}, a.NewLock())

	opts := a.SendDefaults()
	assert.Equal(t, "1s", opts.DelayMin.String())
	assert.Equal(t, "2.5s", opts.DelayMax.String())
	assert.Equal(t, "1m0s", opts.MaxWait.String())
}

func TestNew_DryRunEndToEnd(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	p, err := a.Batches.Upload(ctx, strings.NewReader("mobile,full_name\n555-123-4567,Alex\n"), domain.Templates{A: "Hi {{name}}"})
	require.NoError(t, err)

	zero := 0.0
	dry := true
	_, err = a.Batches.Send(ctx, p.BatchID, batch.SendRequest{All: true, DryRun: &dry, DelayMin: &zero, DelayMax: &zero})
	require.NoError(t, err)
	a.Batches.Wait()

	res, err := a.Batches.Results(ctx, p.BatchID)
	require.NoError(t, err)
	require.Len(t, res.Report.Results, 1)
	assert.Equal(t, "+15551234567", res.Report.Results[0].Phone)
	assert.Equal(t, "Hi Alex", res.Report.Results[0].Message)
	assert.Equal(t, domain.StatusDryRun, res.Report.Results[0].Status)

	names, err := a.Logs.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Report.LogName}, names)

	_, err = a.Batches.Send(ctx, p.BatchID, batch.SendRequest{All: true})
	assert.ErrorIs(t, err, dispatch.ErrNoSender)
}

func TestNew_RedisBatchStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Batches.Store = "redis"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.MemoryRepo)
	assert.IsType(t, &distlock.RedisLock{}, a.NewLock())

	p, err := a.Batches.Upload(context.Background(), strings.NewReader("phone\n5551234567\n"), domain.Templates{A: "Hi"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("textdispatch:batch:"+p.BatchID))
}

func TestNew_ConfigErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Batches.Store = "redis"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "no redis url")

	cfg = testConfig(t)
	cfg.Sender.Type = "carrier-pigeon"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown sender type")

	cfg = testConfig(t)
	cfg.Batches.Store = "etcd"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown batch store")
}
