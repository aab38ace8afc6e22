package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdesk/internal/models"

	"github.com/google/uuid"
)

func (s *Store) Create(ctx context.Context, kind models.EntityKind, fields map[string]any) (models.Record, error) {
	id, clean := splitID(fields)
	if id == "" {
		id = uuid.NewString()
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return models.Record{}, fmt.Errorf("encode %s fields: %w", kind, err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records(kind, id, fields, created_at, updated_at) VALUES(?, ?, ?, ?, ?)",
		string(kind),
		id,
		string(data),
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return models.Record{}, fmt.Errorf("insert %s: %w", kind, err)
	}
	return models.Record{ID: id, Kind: kind, Fields: clean, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) Get(ctx context.Context, kind models.EntityKind, id string) (models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, fields, created_at, updated_at FROM records WHERE kind = ? AND id = ?",
		string(kind),
		id,
	)
	rec, err := scanRecord(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return rec, err
}

func (s *Store) Update(ctx context.Context, kind models.EntityKind, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT id, fields, created_at, updated_at FROM records WHERE kind = ? AND id = ?",
		string(kind),
		id,
	)
	rec, err := scanRecord(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	if err != nil {
		return err
	}

	for k, v := range fields {
		if k == "id" {
			continue
		}
		if v == nil {
			delete(rec.Fields, k)
			continue
		}
		rec.Fields[k] = v
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode %s fields: %w", kind, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET fields = ?, updated_at = ? WHERE kind = ? AND id = ?",
		string(data),
		time.Now().UnixNano(),
		string(kind),
		id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE kind = ? AND id = ?", string(kind), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, kind models.EntityKind, filter models.Filter) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, fields, created_at, updated_at FROM records WHERE kind = ? ORDER BY created_at ASC, rowid ASC",
		string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, err
		}
		if !filter.Match(rec) {
			continue
		}
		records = append(records, rec)
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, kind models.EntityKind) (models.Record, error) {
	var (
		rec                  models.Record
		raw                  string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &raw, &createdAt, &updatedAt); err != nil {
		return models.Record{}, err
	}
	rec.Kind = kind
	rec.Fields = map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Fields); err != nil {
			return models.Record{}, fmt.Errorf("decode %s %s: %w", kind, rec.ID, err)
		}
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.UpdatedAt = time.Unix(0, updatedAt)
	return rec, nil
}

func splitID(fields map[string]any) (string, map[string]any) {
	clean := make(map[string]any, len(fields))
	id := ""
	for k, v := range fields {
		if k == "id" {
			if s, ok := v.(string); ok {
				id = strings.TrimSpace(s)
			}
			continue
		}
		if v == nil {
			continue
		}
		clean[k] = v
	}
	return id, clean
}
