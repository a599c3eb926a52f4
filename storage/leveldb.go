package storage

import (
	"bytes"
	"io"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
)

// leveldbMeta keeps variant lists as gob records in a leveldb database.
// Metastore and entitystore databases live in separate subdirectories so
// both URIs may point at the same base path.
type leveldbMeta struct {
	db *leveldb.DB
}

func newLevelDBMeta(path string) (*leveldbMeta, error) {
	db, err := leveldb.OpenFile(filepath.Join(path, "meta"), nil)
	if err != nil {
		return nil, err
	}
	return &leveldbMeta{db: db}, nil
}

func (l *leveldbMeta) read(key string) ([]Variant, error) {
	data, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVariants(data)
}

func (l *leveldbMeta) write(key string, variants []Variant) error {
	data, err := encodeVariants(variants)
	if err != nil {
		return err
	}
	return l.db.Put([]byte(key), data, nil)
}

func (l *leveldbMeta) purge(key string) (bool, error) {
	found, err := l.db.Has([]byte(key), nil)
	if err != nil {
		return false, err
	}
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return false, err
	}
	return found, nil
}

// leveldbEntity stores bodies by digest in a leveldb database.
type leveldbEntity struct {
	db *leveldb.DB
}

func newLevelDBEntity(path string) (*leveldbEntity, error) {
	db, err := leveldb.OpenFile(filepath.Join(path, "entity"), nil)
	if err != nil {
		return nil, err
	}
	return &leveldbEntity{db: db}, nil
}

func (l *leveldbEntity) Open(digest string) (io.ReadCloser, error) {
	body, err := l.Read(digest)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (l *leveldbEntity) Read(digest string) ([]byte, error) {
	data, err := l.db.Get([]byte(digest), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return data, err
}

func (l *leveldbEntity) Write(r io.Reader) (string, int64, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	digest := contentDigest(body)
	if err := l.db.Put([]byte(digest), body, nil); err != nil {
		return "", 0, err
	}
	return digest, int64(len(body)), nil
}

func (l *leveldbEntity) Purge(digest string) error {
	found, err := l.db.Has([]byte(digest), nil)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return l.db.Delete([]byte(digest), nil)
}
