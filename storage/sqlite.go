package storage

import (
	"bytes"
	"database/sql"
	"io"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// sqliteMeta keeps variant lists as gob blobs in a sqlite database.
// Writes are serialized through a mutex; the database runs in WAL mode so
// readers do not block on writers.
type sqliteMeta struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

func newSQLiteMeta(filename string) (*sqliteMeta, error) {
	db, err := openSQLite(filename, `CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		bytes BLOB
	)`)
	if err != nil {
		return nil, err
	}
	return &sqliteMeta{db: db, writeMutex: &sync.Mutex{}}, nil
}

func (s *sqliteMeta) read(key string) ([]Variant, error) {
	var data []byte
	err := s.db.QueryRow("SELECT bytes FROM meta WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVariants(data)
}

func (s *sqliteMeta) write(key string, variants []Variant) error {
	data, err := encodeVariants(variants)
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.Exec("INSERT OR REPLACE INTO meta (key, bytes) VALUES (?, ?)", key, data)
	return err
}

func (s *sqliteMeta) purge(key string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM meta WHERE key = ?", key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// sqliteEntity stores bodies by digest in a sqlite database.
type sqliteEntity struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

func newSQLiteEntity(filename string) (*sqliteEntity, error) {
	db, err := openSQLite(filename, `CREATE TABLE IF NOT EXISTS entity (
		digest TEXT PRIMARY KEY,
		bytes BLOB
	)`)
	if err != nil {
		return nil, err
	}
	return &sqliteEntity{db: db, writeMutex: &sync.Mutex{}}, nil
}

func (s *sqliteEntity) Open(digest string) (io.ReadCloser, error) {
	body, err := s.Read(digest)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *sqliteEntity) Read(digest string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT bytes FROM entity WHERE digest = ?", digest).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *sqliteEntity) Write(r io.Reader) (string, int64, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	digest := contentDigest(body)
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.Exec("INSERT OR REPLACE INTO entity (digest, bytes) VALUES (?, ?)", digest, body)
	if err != nil {
		return "", 0, err
	}
	return digest, int64(len(body)), nil
}

func (s *sqliteEntity) Purge(digest string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM entity WHERE digest = ?", digest)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// openSQLite opens the database at filename, creating the schema if
// needed. An empty filename opens a shared in-memory database.
func openSQLite(filename, schema string) (*sql.DB, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	return db, nil
}
