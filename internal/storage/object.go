/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage reads and writes whole objects on the local filesystem or
// S3-compatible storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Open resolves location to a store and the key within it. s3://bucket/key
// selects S3; anything else is a local path.
func Open(ctx context.Context, location string, cfg S3Config) (ObjectStore, string, error) {
	if rest, ok := strings.CutPrefix(location, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid S3 location %q, want s3://bucket/key", location)
		}
		store, err := NewS3Store(ctx, cfg, bucket)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	}
	return FileStore{}, location, nil
}

// FileStore keeps objects as files; keys are paths.
type FileStore struct{}

// Get reads the file at key.
func (FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

// Put writes data to key through a temporary file in the same directory.
func (FileStore) Put(_ context.Context, key string, data []byte) error {
	dir := filepath.Dir(key)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(key)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), key)
}
