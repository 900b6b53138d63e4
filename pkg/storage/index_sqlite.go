package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndex persists the id to directory index next to the items, so a
// restarted process can resolve ids without scanning.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if needed) the index database at dbPath.
func OpenSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.init(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteIndex) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS item_dirs (
		id TEXT PRIMARY KEY,
		dir TEXT NOT NULL,
		indexed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_item_dirs_dir ON item_dirs(dir);
	`
	_, err := idx.db.Exec(schema)
	return err
}

func (idx *SQLiteIndex) Lookup(id string) (string, bool, error) {
	var dir string
	err := idx.db.QueryRow("SELECT dir FROM item_dirs WHERE id = ?", id).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return dir, true, nil
}

func (idx *SQLiteIndex) Put(id, dir string) error {
	_, err := idx.db.Exec(`
		INSERT INTO item_dirs (id, dir, indexed_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET dir = excluded.dir, indexed_at = excluded.indexed_at
	`, id, dir, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	return nil
}

func (idx *SQLiteIndex) Remove(id string) error {
	if _, err := idx.db.Exec("DELETE FROM item_dirs WHERE id = ?", id); err != nil {
		return fmt.Errorf("unindex %s: %w", id, err)
	}
	return nil
}

func (idx *SQLiteIndex) Reset(entries map[string]string) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM item_dirs"); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO item_dirs (id, dir, indexed_at) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for id, dir := range entries {
		if _, err := stmt.Exec(id, dir, now); err != nil {
			return fmt.Errorf("index %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Len is the number of indexed items.
func (idx *SQLiteIndex) Len() (int, error) {
	var n int
	err := idx.db.QueryRow("SELECT COUNT(*) FROM item_dirs").Scan(&n)
	return n, err
}

func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}
