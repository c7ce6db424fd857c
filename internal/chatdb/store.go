// Package chatdb reads outbound messages from the local Messages history
// database (chat.db). The database is written by the Messages client; this
// package only ever opens it read-only.
package chatdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/service/sending"
)

// MaxRows caps every history query.
const MaxRows = 50

// ErrStoreMissing is returned when the database file does not exist.
var ErrStoreMissing = errors.New("chat.db not found")

// Older databases store message dates in seconds since 2001, newer ones in
// nanoseconds. The window is bound in nanoseconds and every row is scaled to
// match before comparison.
const outboundQuery = `
SELECT
	m.ROWID,
	COALESCE(m.guid, ''),
	COALESCE(m.text, ''),
	COALESCE(m.date, 0),
	COALESCE(m.date_delivered, 0),
	COALESCE(m.is_from_me, 0),
	COALESCE(m.is_sent, 0),
	COALESCE(m.is_delivered, 0),
	COALESCE(m.error, 0),
	COALESCE(m.service, ''),
	h.id
FROM message m
JOIN handle h ON m.handle_id = h.ROWID
WHERE m.is_from_me = 1
  AND (CASE WHEN m.date > 10000000000 THEN m.date ELSE m.date * 1000000000 END) BETWEEN ? AND ?
  AND h.id IS NOT NULL
ORDER BY (CASE WHEN m.date > 10000000000 THEN m.date ELSE m.date * 1000000000 END) DESC
LIMIT 50`

// Store is a read-only HistoryStore backed by chat.db.
type Store struct {
	db   *sql.DB
	path string
}

var _ sending.HistoryStore = (*Store)(nil)

// DefaultPath returns ~/Library/Messages/chat.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("Library", "Messages", "chat.db")
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// Open prepares a read-only handle on the database at path. The file is not
// touched until the first query, so a missing database surfaces as a query
// error rather than a startup failure.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_pragma=busy_timeout(2000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chat.db: %w", err)
	}
	// The Messages client is the only writer; a single reader is plenty.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Store{db: db, path: path}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close releases the handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database can be read.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.checkFile(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Query returns up to MaxRows self-authored messages dated inside window,
// newest first. The address hint is not pushed into SQL: chat.db stores
// handles in several formats and the caller compares by digit suffix.
func (s *Store) Query(ctx context.Context, _ string, window sending.TimeWindow) ([]domain.HistoryRow, error) {
	if err := s.checkFile(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, outboundQuery, TimeToApple(window.From), TimeToApple(window.To))
	if err != nil {
		return nil, fmt.Errorf("query chat.db: %w", err)
	}
	defer rows.Close()

	out := make([]domain.HistoryRow, 0, MaxRows)
	for rows.Next() {
		var (
			r                       domain.HistoryRow
			fromMe, sent, delivered int64
		)
		if err := rows.Scan(&r.RowID, &r.GUID, &r.Text, &r.Date, &r.DateDelivered,
			&fromMe, &sent, &delivered, &r.Error, &r.Service, &r.Address); err != nil {
			return nil, fmt.Errorf("scan chat.db row: %w", err)
		}
		r.IsFromMe = fromMe == 1
		r.IsSent = sent == 1
		r.IsDelivered = delivered == 1
		r.SentAt = AppleToTime(r.Date)
		r.DeliveredAt = AppleToTime(r.DateDelivered)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) checkFile() error {
	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w at %s", ErrStoreMissing, s.path)
		}
		return err
	}
	return nil
}
