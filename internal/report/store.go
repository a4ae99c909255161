// Package report provides PostgreSQL-backed storage for user-submitted
// reports. Each report carries a snapshot copy of the offending message
// taken at report time, so it stays readable even after the message itself
// is deleted or evicted from the history.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/parroquiasbdebarinas-lang/Server/internal/chat"
)

// Report is a single user-submitted report. The snapshot retains the
// reported message's address, which is why reports are delivered only to
// privileged viewers.
type Report struct {
	ID          string       `json:"id"`
	ReportedMsg chat.Message `json:"reportedMsg"`
	Reason      string       `json:"reason"`
	ReporterIP  string       `json:"reporterIp"`
	Timestamp   int64        `json:"timestamp"` // milliseconds since epoch
}

// Store manages reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a report. The message snapshot is marshalled to JSONB.
func (s *Store) Create(ctx context.Context, r Report) error {
	snapshot, err := json.Marshal(r.ReportedMsg)
	if err != nil {
		return fmt.Errorf("report: marshal snapshot: %w", err)
	}

	const query = `
		INSERT INTO abuse_reports (id, reported_msg, reason, reporter_ip, ts)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.db.ExecContext(ctx, query, r.ID, snapshot, r.Reason, r.ReporterIP, r.Timestamp); err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// All returns every report, newest-first.
func (s *Store) All(ctx context.Context) ([]Report, error) {
	const query = `
		SELECT id, reported_msg, reason, reporter_ip, ts
		FROM abuse_reports
		ORDER BY ts DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("report: query: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var (
			r        Report
			snapshot []byte
		)
		if err := rows.Scan(&r.ID, &snapshot, &r.Reason, &r.ReporterIP, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		if err := json.Unmarshal(snapshot, &r.ReportedMsg); err != nil {
			return nil, fmt.Errorf("report: unmarshal snapshot: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: rows: %w", err)
	}
	return reports, nil
}
