// Package audit writes the per-batch send log: one CSV row per recipient
// the batch attempted, in submission order, written once when the batch ends.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/storage"
)

// Columns is the fixed header of every send log.
var Columns = []string{
	"phone", "variant", "name", "business", "address",
	"ok", "status", "service", "likely_landline",
	"error", "message",
}

// FileName returns the log name for a batch started at t.
func FileName(t time.Time, batchID string) string {
	suffix := strings.ReplaceAll(batchID, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	name := "send_log_" + t.Format("20060102_150405")
	if suffix != "" {
		name += "_" + suffix
	}
	return name + ".csv"
}

// Encode writes the header and one row per result.
func Encode(w io.Writer, results []domain.SendResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row renders one result in Columns order.
func Row(r domain.SendResult) []string {
	return []string{
		r.Phone,
		string(r.Variant),
		r.Field(domain.FieldName),
		r.Field(domain.FieldBusiness),
		r.Field(domain.FieldAddress),
		flag(r.OK),
		string(r.Status),
		r.Service,
		flag(r.LikelyLandline),
		strings.ReplaceAll(r.Error, "\n", " "),
		r.Message,
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Writer persists send logs to an artifact store.
type Writer struct {
	store storage.ArtifactStore
}

func NewWriter(store storage.ArtifactStore) *Writer {
	return &Writer{store: store}
}

// WriteLog encodes results and stores them as a single artifact. It returns
// the artifact name.
func (w *Writer) WriteLog(ctx context.Context, batchID string, startedAt time.Time, results []domain.SendResult) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, results); err != nil {
		return "", fmt.Errorf("encode send log: %w", err)
	}
	name := FileName(startedAt, batchID)
	if err := w.store.Put(ctx, name, buf.Bytes()); err != nil {
		return name, fmt.Errorf("store send log %s: %w", name, err)
	}
	return name, nil
}
