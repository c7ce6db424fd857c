package datanorm

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/logger"
)

// ErrNoHeader is returned when the CSV has no readable header row.
var ErrNoHeader = errors.New("could not read CSV headers")

// Importer turns an uploaded recipient CSV into normalized recipients.
type Importer struct {
	phones *PhoneNormalizer
}

func NewImporter(phones *PhoneNormalizer) *Importer {
	if phones == nil {
		phones = &PhoneNormalizer{}
	}
	return &Importer{phones: phones}
}

// ImportFromReader reads a CSV stream, maps headers to recipient fields,
// trims values and normalizes the phone column. Rows are returned in file
// order. Cells beyond the header width are ignored, as are columns with an
// empty header. Malformed rows are skipped and counted.
func (imp *Importer) ImportFromReader(r io.Reader) ([]domain.Recipient, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	mapping := MapColumns(header)
	if len(mapping.FieldMap) == 0 {
		return nil, ErrNoHeader
	}

	var recipients []domain.Recipient
	errCount := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errCount++
			continue
		}
		if isBlankRow(row) {
			continue
		}
		recipients = append(recipients, imp.NormalizeRecord(row, mapping))
	}

	if errCount > 0 {
		logger.Warn("skipped malformed CSV rows", "count", errCount)
	}
	return recipients, nil
}

// NormalizeRecord builds one recipient from a raw CSV row.
func (imp *Importer) NormalizeRecord(row []string, mapping *ColumnMapping) domain.Recipient {
	fields := make(map[string]string, len(mapping.FieldMap)+1)
	for idx, name := range mapping.FieldMap {
		val := ""
		if idx < len(row) {
			val = strings.TrimSpace(row[idx])
		}
		fields[name] = val
	}

	phone := imp.phones.Normalize(fields[domain.FieldPhone])
	fields[domain.FieldPhone] = phone
	return domain.Recipient{Phone: phone, Fields: fields}
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM wraps a reader to strip a UTF-8 BOM if present.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(3); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(3)
	}
	return br
}
