/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog loads the song catalog from a file, S3 or the database.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/storage"
)

// Format is a catalog file encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

var (
	ErrEmptyID     = errors.New("catalog song has no id")
	ErrDuplicateID = errors.New("duplicate catalog id")
)

// document is the on-disk shape: {"catalog": [...]}.
type document struct {
	Catalog []models.Song `json:"catalog" yaml:"catalog"`
}

// FormatFor picks the encoding from a file name or S3 key.
func FormatFor(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Parse decodes a catalog document. Both {"catalog": [...]} and a bare list
// of songs are accepted.
func Parse(data []byte, format Format) ([]models.Song, error) {
	var songs []models.Song
	switch format {
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}
		if len(node.Content) == 0 {
			return nil, nil
		}
		root := node.Content[0]
		if root.Kind == yaml.SequenceNode {
			if err := root.Decode(&songs); err != nil {
				return nil, fmt.Errorf("parse yaml catalog: %w", err)
			}
		} else {
			var doc document
			if err := root.Decode(&doc); err != nil {
				return nil, fmt.Errorf("parse yaml catalog: %w", err)
			}
			songs = doc.Catalog
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &songs); err != nil {
				return nil, fmt.Errorf("parse json catalog: %w", err)
			}
		} else {
			var doc document
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, fmt.Errorf("parse json catalog: %w", err)
			}
			songs = doc.Catalog
		}
	}

	if err := Validate(songs); err != nil {
		return nil, err
	}
	for i := range songs {
		songs[i].Position = i
	}
	return songs, nil
}

// Encode writes songs as a {"catalog": [...]} document.
func Encode(songs []models.Song, format Format) ([]byte, error) {
	doc := document{Catalog: songs}
	if doc.Catalog == nil {
		doc.Catalog = []models.Song{}
	}
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Validate rejects songs without an id and repeated ids.
func Validate(songs []models.Song) error {
	seen := make(map[string]struct{}, len(songs))
	for i, s := range songs {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("entry %d: %w", i, ErrEmptyID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Load reads the catalog at location: a local .json/.yaml/.yml file or an
// s3://bucket/key URL.
func Load(ctx context.Context, location string, s3cfg storage.S3Config) ([]models.Song, error) {
	store, key, err := storage.Open(ctx, location, s3cfg)
	if err != nil {
		return nil, err
	}
	return Read(ctx, store, key)
}

// Read loads and parses the catalog object at key.
func Read(ctx context.Context, store storage.ObjectStore, key string) ([]models.Song, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, FormatFor(key))
}

// Save writes songs to location in the format its extension names.
func Save(ctx context.Context, location string, s3cfg storage.S3Config, songs []models.Song) error {
	store, key, err := storage.Open(ctx, location, s3cfg)
	if err != nil {
		return err
	}
	data, err := Encode(songs, FormatFor(key))
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data)
}

// LoadDB reads the catalog table in catalog order.
func LoadDB(ctx context.Context, db *gorm.DB) ([]models.Song, error) {
	var songs []models.Song
	if err := db.WithContext(ctx).Order("position ASC").Order("id ASC").Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("load catalog from database: %w", err)
	}
	if err := Validate(songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// Import replaces the catalog table with songs, keeping their order.
func Import(ctx context.Context, db *gorm.DB, songs []models.Song) error {
	if err := Validate(songs); err != nil {
		return err
	}
	rows := make([]models.Song, len(songs))
	for i, s := range songs {
		s.Position = i
		rows[i] = s
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Song{}).Error; err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert catalog: %w", err)
		}
		return nil
	})
}
