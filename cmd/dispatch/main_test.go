package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/app"
	"github.com/ignite/textdispatch/internal/config"
	"github.com/ignite/textdispatch/internal/dispatch"
	"github.com/ignite/textdispatch/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfigFile(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", `
dispatch:
  delay_min_seconds: 0.01
  delay_max_seconds: 0.01
chatdb:
  path: `+filepath.Join(dir, "chat.db")+`
sender:
  type: none
storage:
  type: local
  local_path: `+filepath.Join(dir, "logs")+`
`)
}

func TestDispatchBatch_ReleasesLockOnError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(testConfigFile(t, dir))
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	msgs := []domain.RenderedMessage{{
		Index:     0,
		Recipient: domain.Recipient{Phone: "+15551234567"},
		Variant:   domain.VariantA,
		Text:      "Hi",
	}}
	_, err = dispatchBatch(context.Background(), a, msgs)
	require.ErrorIs(t, err, dispatch.ErrNoSender)

	lock := a.NewLock()
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "dispatch lock must be free after a failed run")
	require.NoError(t, lock.Release(context.Background()))
}

func TestRun_DryRunWritesLog(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		configPath: testConfigFile(t, dir),
		csvPath:    writeFile(t, dir, "leads.csv", "phone,name\n5551234567,Alex\n"),
		templates:  domain.Templates{A: "Hi {{name}}"},
		dryRun:     true,
	}
	require.NoError(t, run(opts))

	logs, err := filepath.Glob(filepath.Join(dir, "logs", "send_log_*.csv"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfigFile(t, dir)

	err := run(options{configPath: cfgPath, csvPath: filepath.Join(dir, "missing.csv"), templates: domain.Templates{A: "Hi"}})
	assert.ErrorContains(t, err, "open csv")

	csvPath := writeFile(t, dir, "leads.csv", "phone\n5551234567\n")
	err = run(options{configPath: cfgPath, csvPath: csvPath, templates: domain.Templates{A: "Hi {% if %}"}})
	assert.ErrorContains(t, err, "template")

	err = run(options{configPath: cfgPath, csvPath: csvPath, templates: domain.Templates{A: "Hi"}, preview: true})
	assert.NoError(t, err)
}
