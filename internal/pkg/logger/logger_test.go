package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***4567", RedactPhone("+15551234567"))
	assert.Equal(t, "***4567", RedactPhone("(555) 123-4567"))
	assert.Equal(t, "***", RedactPhone("1234"))
	assert.Equal(t, "", RedactPhone(""))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLogRedactsPhoneFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG, true)

	l.Log(INFO, "sent", "phone", "+15551234567", "note", "call +1 555 123 4567 today", "count", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sent", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "***4567", entry["phone"])
	assert.Equal(t, "call ***4567 today", entry["note"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestLogWithoutRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG, false)

	l.Log(WARN, "failed", "phone", "+15551234567", "err", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "+15551234567", entry["phone"])
	assert.Equal(t, "boom", entry["err"])
	assert.Equal(t, "warn", entry["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN, true)

	l.Log(INFO, "dropped")
	assert.Zero(t, buf.Len())

	l.Log(ERROR, "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
