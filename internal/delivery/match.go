package delivery

import (
	"strings"

	"github.com/ignite/textdispatch/internal/datanorm"
	"github.com/ignite/textdispatch/internal/domain"
)

// FuzzyPrefixLen is how many leading characters of the sent text must
// prefix a stored row for the fallback match.
const FuzzyPrefixLen = 120

const (
	reasonFailed    = "message.error > 0"
	reasonDelivered = "is_delivered/date_delivered"
	reasonSent      = "sent but not (delivered/failed) yet"
	reasonNotFound  = "no matching row found"
)

// MatchRow finds the row that records the dispatch of text to phone among
// rows (newest first). An exact text match wins; otherwise the first row
// whose text starts with the first FuzzyPrefixLen characters of text is
// used. Returns nil when nothing matches.
func MatchRow(rows []domain.HistoryRow, phone, text string) (*domain.HistoryRow, bool) {
	want := datanorm.Last10Digits(phone)

	for i := range rows {
		if datanorm.Last10Digits(rows[i].Address) == want && rows[i].Text == text {
			return &rows[i], false
		}
	}

	prefix := truncateRunes(text, FuzzyPrefixLen)
	for i := range rows {
		if datanorm.Last10Digits(rows[i].Address) == want && strings.HasPrefix(rows[i].Text, prefix) {
			return &rows[i], true
		}
	}
	return nil, false
}

// Classify derives the delivery outcome of a matched row. A non-zero error
// code is FAILED even when delivery flags are also set.
func Classify(row domain.HistoryRow, fuzzy bool) domain.DeliveryObservation {
	svc := strings.ToUpper(row.Service)
	raw := row
	obs := domain.DeliveryObservation{Service: svc, Raw: &raw}

	switch {
	case row.Error != 0:
		obs.Status = domain.StatusFailed
		obs.Reason = reasonFailed
		if fuzzy {
			obs.Reason += " (fuzzy match)"
		}
	case row.IsDelivered || row.DateDelivered > 0:
		obs.Status = domain.StatusDelivered
		obs.Reason = reasonDelivered
		if fuzzy {
			obs.Reason += " (fuzzy)"
		}
	default:
		obs.Status = domain.StatusSent
		obs.Reason = reasonSent
		if fuzzy {
			obs.Reason += " (fuzzy)"
		}
	}

	obs.LikelyLandline = svc == domain.ServiceSMS && obs.Status == domain.StatusFailed
	return obs
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
