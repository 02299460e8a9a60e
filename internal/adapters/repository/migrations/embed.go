// Package migrations embeds the leaderboard schema.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the leaderboard store.
//
//go:embed *.sql
var FS embed.FS
