/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Duration is a track length as written in the catalog ("3:45", "225").
// Catalog files may carry it as a JSON string or a bare number; it is always
// emitted as a string.
type Duration string

// UnmarshalJSON accepts both string and numeric durations.
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Duration(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(n.String())
	return nil
}

// UnmarshalYAML keeps the scalar text as written, whatever its YAML type.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got kind %d", value.Kind)
	}
	if value.Tag == "!!null" {
		*d = ""
		return nil
	}
	*d = Duration(value.Value)
	return nil
}

// Song is a catalog entry. Songs are identified by ID alone: two values with
// the same ID are the same song regardless of the other fields.
type Song struct {
	ID       string   `gorm:"type:varchar(64);primaryKey" json:"id" yaml:"id"`
	Title    string   `gorm:"type:varchar(255)" json:"song_title" yaml:"song_title"`
	Artist   string   `gorm:"type:varchar(255);index" json:"artist" yaml:"artist"`
	Album    string   `gorm:"type:varchar(255)" json:"album_title" yaml:"album_title"`
	Duration Duration `gorm:"type:varchar(32)" json:"duration" yaml:"duration"`
	// Position preserves catalog order for database-backed catalogs.
	Position int `gorm:"index" json:"-" yaml:"-"`
}

// TableName returns the table name for GORM.
func (Song) TableName() string {
	return "songs"
}

// SameAs reports whether s and other are the same catalog song.
func (s Song) SameAs(other Song) bool {
	return s.ID == other.ID
}
