package authority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS user_authority (
	platform  TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	authority INTEGER NOT NULL,
	PRIMARY KEY (platform, user_id)
)`

// Record is one row of the authority table.
type Record struct {
	Platform  string
	UserID    string
	Authority int
}

// SQLiteStore keeps authority levels in a sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create authority dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open authority db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create authority schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Authority(ctx context.Context, platform, userID string) (int, bool, error) {
	var level int
	err := s.db.QueryRowContext(ctx,
		`SELECT authority FROM user_authority WHERE platform = ? AND user_id = ?`,
		platform, userID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query authority: %w", err)
	}
	return level, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, platform, userID string, level int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_authority (platform, user_id, authority) VALUES (?, ?, ?)
		 ON CONFLICT(platform, user_id) DO UPDATE SET authority = excluded.authority`,
		platform, userID, level)
	if err != nil {
		return fmt.Errorf("set authority: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, platform, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_authority WHERE platform = ? AND user_id = ?`, platform, userID)
	if err != nil {
		return fmt.Errorf("delete authority: %w", err)
	}
	return nil
}

// List returns every record ordered by platform and user id.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, user_id, authority FROM user_authority ORDER BY platform, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list authority: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Platform, &r.UserID, &r.Authority); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
