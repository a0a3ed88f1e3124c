// Package db carries the SQL migrations, embedded into production builds
// via the embed_migrations build tag.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
