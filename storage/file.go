package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
)

// fileMeta keeps one gob file per variant list in a directory tree. Files
// are named by the digest of the cache key and fanned out over two hex
// levels to keep directories small. Writes go to a temp file first and
// are published by rename, so readers never observe partial lists.
type fileMeta struct {
	dir string
}

func (f *fileMeta) path(key string) string {
	digest := keyDigest(key)
	return filepath.Join(f.dir, digest[0:2], digest[2:4], digest)
}

func (f *fileMeta) read(key string) ([]Variant, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVariants(data)
}

func (f *fileMeta) write(key string, variants []Variant) error {
	data, err := encodeVariants(variants)
	if err != nil {
		return err
	}
	return atomicWrite(f.path(key), data)
}

func (f *fileMeta) purge(key string) (bool, error) {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// fileEntity stores one body file per digest, fanned out like fileMeta.
// Bodies are streamed into a staging file while hashing and renamed into
// place once the digest is known.
type fileEntity struct {
	dir string
}

func (f *fileEntity) path(digest string) string {
	return filepath.Join(f.dir, digest[0:2], digest[2:4], digest)
}

func (f *fileEntity) Open(digest string) (io.ReadCloser, error) {
	file, err := os.Open(f.path(digest))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *fileEntity) Read(digest string) ([]byte, error) {
	data, err := os.ReadFile(f.path(digest))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (f *fileEntity) Write(r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(f.dir, "new-*")
	if err != nil {
		return "", 0, err
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	digest := hex.EncodeToString(hash.Sum(nil))
	path := f.path(digest)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	return digest, size, nil
}

func (f *fileEntity) Purge(digest string) error {
	err := os.Remove(f.path(digest))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
