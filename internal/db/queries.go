package db

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/hpungsan/reel/internal/errors"
)

// Well-known keys for persisted session state.
const (
	KeyProjects         = "videoProjects"
	KeyCurrentProjectID = "currentProjectId"
	KeyCurrentClipID    = "currentClipId"
)

// ErrKeyNotFound is returned when a key has never been stored.
// Callers treat it as empty/default.
var ErrKeyNotFound = &errors.ReelError{
	Code:    "KEY_NOT_FOUND",
	Status:  404,
	Message: "key not found",
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// GetRaw returns the JSON stored under key.
func GetRaw(db *sql.DB, key string) ([]byte, error) {
	return getRaw(db, key)
}

func getRaw(q querier, key string) ([]byte, error) {
	var value string
	err := q.QueryRow(`SELECT value_json FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return []byte(value), nil
}

// GetJSON decodes the value under key into out. An absent key leaves out
// untouched and returns nil.
func GetJSON(db *sql.DB, key string, out any) error {
	raw, err := GetRaw(db, key)
	if err == ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PutJSON stores value under key, replacing any previous value.
func PutJSON(db *sql.DB, key string, value any) error {
	return putJSON(db, key, value)
}

func putJSON(q querier, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = q.Exec(`
		INSERT INTO kv (key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, key, string(data), time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Update reads the raw value under key (nil if absent), passes it to fn, and
// stores fn's result in one transaction. If fn returns an error nothing is written.
func Update(db *sql.DB, key string, fn func(raw []byte) (any, error)) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	raw, err := getRaw(tx, key)
	if err != nil && err != ErrKeyNotFound {
		return err
	}
	next, err := fn(raw)
	if err != nil {
		return err
	}
	if err := putJSON(tx, key, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func Delete(db *sql.DB, key string) error {
	if _, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
