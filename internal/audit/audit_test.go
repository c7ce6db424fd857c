package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/storage"
)

func sampleResults() []domain.SendResult {
	return []domain.SendResult{
		{
			Phone: "+15551234567", Variant: domain.VariantA, Message: "Hi Alex, \"quoted\"",
			Fields: map[string]string{"name": "Alex", "business": "Acme, Inc", "address": "1 Main St"},
			OK:     true, Status: domain.StatusDelivered, Service: "IMESSAGE",
		},
		{
			Phone: "", Variant: domain.VariantA,
			Fields: map[string]string{"name": "Blair"},
			Status: domain.StatusSkipped, Error: domain.MissingPhoneError,
		},
		{
			Phone: "+15557654321", Variant: domain.VariantB, Message: "Hi Casey",
			Status: domain.StatusFailed, Service: "SMS", LikelyLandline: true,
			Error: "message.error > 0\nsecond line",
		},
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleResults()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, Columns, records[0])
	assert.Equal(t, []string{"+15551234567", "A", "Alex", "Acme, Inc", "1 Main St", "1", "DELIVERED", "IMESSAGE", "0", "", "Hi Alex, \"quoted\""}, records[1])
	assert.Equal(t, []string{"", "A", "Blair", "", "", "0", "SKIPPED", "", "0", "Missing phone", ""}, records[2])
	assert.Equal(t, "1", records[3][8])
	assert.Equal(t, "message.error > 0 second line", records[3][9])
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 7, 4, 9, 5, 3, 0, time.Local)
	assert.Equal(t, "send_log_20240704_090503_1b4e28ba.csv", FileName(ts, "1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Equal(t, "send_log_20240704_090503.csv", FileName(ts, ""))
	assert.NoError(t, storage.ValidateName(FileName(ts, "abc")))
}

func TestWriteLog(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	w := NewWriter(store)
	started := time.Date(2024, 7, 4, 9, 5, 3, 0, time.Local)
	name, err := w.WriteLog(ctx, "deadbeef-0000", started, sampleResults())
	require.NoError(t, err)
	assert.Equal(t, "send_log_20240704_090503_deadbeef.csv", name)

	rc, err := store.Open(ctx, name)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)
}
