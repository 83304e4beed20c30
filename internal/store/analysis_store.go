package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vbonduro/nutrilens/internal/domain"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type AnalysisStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db, now: time.Now}
}

// Create inserts rec and fills in its CreatedAt.
func (s *AnalysisStore) Create(ctx context.Context, rec *domain.AnalysisRecord) error {
	body, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}

	createdAt := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, request_type, subject, status, model, photo_key, mime_type, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.RequestType), rec.Subject, rec.Status, rec.Model, rec.PhotoKey, rec.MimeType, string(body), createdAt)
	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}

	rec.CreatedAt = createdAt
	return nil
}

// GetByID returns nil, nil when no analysis has the given id.
func (s *AnalysisStore) GetByID(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_type, subject, status, model, photo_key, mime_type, result, created_at
		FROM analyses WHERE id = ?
	`, id)

	rec, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return rec, nil
}

// List returns up to limit analyses, newest first. A non-positive limit
// means DefaultListLimit; limits above MaxListLimit are clamped.
func (s *AnalysisStore) List(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_type, subject, status, model, photo_key, mime_type, result, created_at
		FROM analyses ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	records := []*domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyses: %w", err)
	}

	return records, nil
}

func (s *AnalysisStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM analyses WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("analysis not found")
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*domain.AnalysisRecord, error) {
	rec := &domain.AnalysisRecord{}
	var requestType, body string
	err := row.Scan(&rec.ID, &requestType, &rec.Subject, &rec.Status, &rec.Model,
		&rec.PhotoKey, &rec.MimeType, &body, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.RequestType = domain.RequestType(requestType)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var result domain.Result
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result for analysis %s: %w", rec.ID, err)
	}
	rec.Result = result
	return rec, nil
}
