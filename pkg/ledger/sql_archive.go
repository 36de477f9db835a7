package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLArchive is a durable Anchorer backed by database/sql. It works with
// SQLite (modernc.org/sqlite, placeholderDollar=false) and Postgres
// (lib/pq, placeholderDollar=true). Each commit inserts an immutable row
// keyed by a generated transaction reference.
type SQLArchive struct {
	db                *sql.DB
	placeholderDollar bool
	clock             func() time.Time
}

// NewSQLiteArchive wraps a modernc.org/sqlite database handle.
func NewSQLiteArchive(db *sql.DB) (*SQLArchive, error) {
	a := &SQLArchive{db: db, placeholderDollar: false, clock: time.Now}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewPostgresArchive wraps a lib/pq database handle. The caller owns the
// schema migration in Postgres deployments; migrate is still attempted and
// is a no-op when the table exists.
func NewPostgresArchive(db *sql.DB) (*SQLArchive, error) {
	a := &SQLArchive{db: db, placeholderDollar: true, clock: time.Now}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

// WithClock overrides the clock for testing.
func (a *SQLArchive) WithClock(clock func() time.Time) *SQLArchive {
	a.clock = clock
	return a
}

func (a *SQLArchive) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS anchored_records (
		tx_ref      TEXT PRIMARY KEY,
		subject_id  TEXT NOT NULL,
		record_ts   BIGINT NOT NULL,
		data_hash   TEXT NOT NULL,
		cid         TEXT NOT NULL,
		anchored_at TIMESTAMP NOT NULL
	);`
	_, err := a.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate anchored_records: %w", err)
	}
	return nil
}

func (a *SQLArchive) Commit(ctx context.Context, subjectID string, timestamp int64, dataHash, cid string) (*Receipt, error) {
	txRef := uuid.NewString()
	anchoredAt := a.clock().UTC()

	query := `INSERT INTO anchored_records (tx_ref, subject_id, record_ts, data_hash, cid, anchored_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if a.placeholderDollar {
		query = `INSERT INTO anchored_records (tx_ref, subject_id, record_ts, data_hash, cid, anchored_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	}

	_, err := a.db.ExecContext(ctx, query, txRef, subjectID, timestamp, dataHash, cid, anchoredAt)
	if err != nil {
		return nil, fmt.Errorf("archive commit: %w", err)
	}

	return &Receipt{TxRef: txRef, AnchoredAt: anchoredAt}, nil
}

// ArchivedRecord is one durably anchored commitment.
type ArchivedRecord struct {
	TxRef      string
	SubjectID  string
	Timestamp  int64
	DataHash   string
	CID        string
	AnchoredAt time.Time
}

// Get retrieves an archived commitment by transaction reference.
func (a *SQLArchive) Get(ctx context.Context, txRef string) (*ArchivedRecord, error) {
	query := `SELECT tx_ref, subject_id, record_ts, data_hash, cid, anchored_at
		FROM anchored_records WHERE tx_ref = ?`
	if a.placeholderDollar {
		query = `SELECT tx_ref, subject_id, record_ts, data_hash, cid, anchored_at
		FROM anchored_records WHERE tx_ref = $1`
	}

	var rec ArchivedRecord
	err := a.db.QueryRowContext(ctx, query, txRef).Scan(
		&rec.TxRef, &rec.SubjectID, &rec.Timestamp, &rec.DataHash, &rec.CID, &rec.AnchoredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive get: %w", err)
	}
	return &rec, nil
}

// ListBySubject returns the most recent commitments for one subject,
// newest first.
func (a *SQLArchive) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*ArchivedRecord, error) {
	query := `SELECT tx_ref, subject_id, record_ts, data_hash, cid, anchored_at
		FROM anchored_records WHERE subject_id = ? ORDER BY anchored_at DESC LIMIT ?`
	if a.placeholderDollar {
		query = `SELECT tx_ref, subject_id, record_ts, data_hash, cid, anchored_at
		FROM anchored_records WHERE subject_id = $1 ORDER BY anchored_at DESC LIMIT $2`
	}

	rows, err := a.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*ArchivedRecord
	for rows.Next() {
		var rec ArchivedRecord
		if err := rows.Scan(&rec.TxRef, &rec.SubjectID, &rec.Timestamp, &rec.DataHash, &rec.CID, &rec.AnchoredAt); err != nil {
			return nil, fmt.Errorf("archive scan: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive rows: %w", err)
	}
	return records, nil
}
