package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feedmeta/feedmeta/internal/core"
)

// LoadState reads the state document. A missing row is materialised with
// defaults; a schema-version mismatch drops cached entries and keeps
// settings merged against defaults. Either case is persisted before return.
func (s *Store) LoadState(ctx context.Context) (*core.State, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var body string
	row := s.DB.QueryRowContext(ctx, s.rebind(`SELECT body FROM state_documents WHERE name = ?`), documentName)
	if err := row.Scan(&body); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load state: %w", err)
	}

	state, needsSave := decodeDocument([]byte(body))
	if needsSave {
		if err := s.SaveState(ctx, state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// SaveState replaces the whole state document.
func (s *Store) SaveState(ctx context.Context, state *core.State) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	body, err := encodeDocument(state)
	if err != nil {
		return err
	}

	query := s.rebind(`INSERT INTO state_documents (name, schema_version, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			schema_version = excluded.schema_version,
			body = excluded.body,
			updated_at = excluded.updated_at`)

	_, err = s.DB.ExecContext(ctx, query, documentName, core.SchemaVersion, string(body), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
