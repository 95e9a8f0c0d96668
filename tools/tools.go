//go:build tools

package tools

// Tool dependencies pinned in go.mod. The goose CLI applies
// internal/adapters/postgres/migrations by hand when `cloudauditor migrate`
// is not an option.
import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
