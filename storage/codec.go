package storage

import (
	"bytes"
	"encoding/gob"
)

// Variant lists are persisted as gob records by every driver that stores
// bytes (file, sqlite, leveldb, memcached).

func encodeVariants(variants []Variant) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(variants); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVariants(data []byte) ([]Variant, error) {
	var variants []Variant
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&variants); err != nil {
		return nil, err
	}
	return variants, nil
}
