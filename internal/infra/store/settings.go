package store

import (
	"database/sql"
	"strconv"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Settings is the long-lived key-value store for user settings that outlive
// any single session, such as the volume level.
type Settings interface {
	GetInt(key string) (int, bool, error)
	SetInt(key string, value int) error
	Close() error
}

// SQLiteSettings implements Settings on a local sqlite database.
type SQLiteSettings struct {
	db *sql.DB
}

// OpenSettings opens (creating if needed) the settings database at path.
func OpenSettings(path string) (*SQLiteSettings, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open settings database")
	}

	const schema = `CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create settings table")
	}

	return &SQLiteSettings{db: db}, nil
}

// GetInt returns the integer value stored under key.
func (s *SQLiteSettings) GetInt(key string) (int, bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to read setting %s", key)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, errors.Wrapf(err, "setting %s is not an integer", key)
	}
	return v, true, nil
}

// SetInt stores an integer value under key.
func (s *SQLiteSettings) SetInt(key string, value int) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, strconv.Itoa(value),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to write setting %s", key)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteSettings) Close() error {
	return s.db.Close()
}

// MemorySettings is an in-memory Settings implementation for tests.
type MemorySettings struct {
	values map[string]int
}

// NewMemorySettings creates an empty in-memory settings store.
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]int)}
}

func (s *MemorySettings) GetInt(key string) (int, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemorySettings) SetInt(key string, value int) error {
	s.values[key] = value
	return nil
}

func (s *MemorySettings) Close() error { return nil }
