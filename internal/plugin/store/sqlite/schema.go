package sqlite

import (
	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed db/schema.sql
var schemaSQL string
