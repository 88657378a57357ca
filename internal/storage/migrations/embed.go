// Package migrations applies the embedded schema for the durable backends.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// FS embeds the migration files, one directory per database.
//
//go:embed postgres/*.sql clickhouse/*.sql
var FS embed.FS

// Database directories inside FS.
const (
	DirPostgres   = "postgres"
	DirClickhouse = "clickhouse"
)

// Migration is one embedded SQL file.
type Migration struct {
	Version string // file name without extension, e.g. 001_signals
	SQL     string
}

// Load returns the migrations for dir in lexical order. Empty files are skipped.
func Load(dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(FS, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(FS, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(name, ".sql"),
			SQL:     string(data),
		})
	}
	return migrations, nil
}
