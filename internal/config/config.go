// Copyright (C) 2026 The Edamame Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the optional YAML configuration file a deployment
// can supply instead of (or alongside) the command-line flags, §6.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Config mirrors the cmd/edamame flag set so an operator can check a
// file into a deployment repo rather than reconstructing a long flag
// line. sigs.k8s.io/yaml unmarshals through encoding/json, hence the
// json tags.
type Config struct {
	Addr          string `json:"addr,omitempty"`
	NumObjects    int    `json:"num_objects,omitempty"`
	InlineKeylen  int    `json:"inline_keylen,omitempty"`
	InlineVallen  int    `json:"inline_vallen,omitempty"`
	ReaderSlots   int    `json:"reader_slots,omitempty"`
	SwiperSeconds int    `json:"swiper_interval_seconds,omitempty"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}

// Merge overlays non-zero fields of override onto a copy of c and
// returns it; flags passed on the command line win over a config file,
// matching the usual flag-beats-file precedence.
func (c Config) Merge(override Config) Config {
	if override.Addr != "" {
		c.Addr = override.Addr
	}
	if override.NumObjects != 0 {
		c.NumObjects = override.NumObjects
	}
	if override.InlineKeylen != 0 {
		c.InlineKeylen = override.InlineKeylen
	}
	if override.InlineVallen != 0 {
		c.InlineVallen = override.InlineVallen
	}
	if override.ReaderSlots != 0 {
		c.ReaderSlots = override.ReaderSlots
	}
	if override.SwiperSeconds != 0 {
		c.SwiperSeconds = override.SwiperSeconds
	}
	return c
}
