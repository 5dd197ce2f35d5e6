// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package settings implements the CLI/INI configuration layering: built-in
// defaults, overridden by an optional INI file, overridden last by CLI
// flags, mapping an INI file onto a Settings struct via go-ini and
// resolving a default config path via mitchellh/go-homedir.
package settings

import (
	"fmt"

	"github.com/go-ini/ini"
	homedir "github.com/mitchellh/go-homedir"
)

// Settings holds every tunable the batch engine and probe layer need.
type Settings struct {
	Concurrent int
	ChunkSize  int
	RateLimit  int
	TimeoutMS  int
	Resolvers  []string
}

// Defaults mirror the documented defaults for each tunable. RateLimit
// defaults to 30 requests/minute against the federation endpoint; set it to
// 0 (via -rate-limit 0 or an INI file) to disable the ceiling entirely.
func Defaults() Settings {
	return Settings{
		Concurrent: 5,
		ChunkSize:  50,
		RateLimit:  30,
		TimeoutMS:  5000,
	}
}

// DefaultPath returns ~/.sentri.ini, the conventional config file location.
func DefaultPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return home + "/.sentri.ini"
}

// LoadFile overlays the [DEFAULT] and [resolvers] sections of an INI file
// at path onto s, leaving fields the file doesn't mention untouched.
func (s *Settings) LoadFile(path string) error {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:  true,
		AllowShadows: true,
	}, path)
	if err != nil {
		return fmt.Errorf("failed to load configuration file: %w", err)
	}

	def := cfg.Section(ini.DEFAULT_SECTION)
	if def.HasKey("concurrent") {
		s.Concurrent = def.Key("concurrent").MustInt(s.Concurrent)
	}
	if def.HasKey("chunk_size") {
		s.ChunkSize = def.Key("chunk_size").MustInt(s.ChunkSize)
	}
	if def.HasKey("rate_limit") {
		s.RateLimit = def.Key("rate_limit").MustInt(s.RateLimit)
	}
	if def.HasKey("timeout_ms") {
		s.TimeoutMS = def.Key("timeout_ms").MustInt(s.TimeoutMS)
	}

	if sec, err := cfg.GetSection("resolvers"); err == nil {
		s.Resolvers = dedupe(sec.Key("resolver").ValueWithShadows())
	}

	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
