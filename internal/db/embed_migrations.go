package db

import "embed"

// MigrationFS embeds the users and grants schema from internal/db/migrations.
// Used by cmd/migrate to apply migrations.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
