package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLStore persists one snapshot row per (user, test). Works against both the
// sqlite and postgres schemas.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Load(ctx context.Context, userID, testID string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM progress WHERE user_id=$1 AND test_id=$2`, userID, testID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrAbsent
		}
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode stored progress: %w", err)
	}
	return snap, nil
}

func (s *SQLStore) Save(ctx context.Context, userID, testID string, snap Snapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (user_id,test_id,snapshot_json,last_updated)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_id,test_id) DO UPDATE SET
		   snapshot_json=EXCLUDED.snapshot_json, last_updated=EXCLUDED.last_updated`,
		userID, testID, string(buf), snap.LastUpdated)
	return err
}
