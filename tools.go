//go:build tools

package tools

// Tool dependencies were previously tracked here with blank imports.
// mockery (required as v2 in go.mod) is used as an installed binary (not via go run), so no
// import is needed.
