package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"

	"formrelay/internal/constants"
	"formrelay/internal/lock"
)

const schema = "formrelay_schema"

// Init connects, creates the schema if needed, and applies the migration
// scripts in lexical order. A distributed lock keeps concurrent instances
// from racing each other through the scripts.
func Init(postgresURL, migrationsDir string, locks lock.DistributedLockManager) error {
	conn, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := locks.Acquire(constants.MigrationLock); err != nil {
		return err
	}
	defer locks.Release(constants.MigrationLock)

	if err := conn.Ping(); err != nil {
		return err
	}

	if _, err := conn.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return err
	}

	scripts, err := readSQLScripts(migrationsDir)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if _, err := conn.Exec(script); err != nil {
			return err
		}
	}
	return nil
}

func readSQLScripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, string(content))
	}
	return scripts, nil
}
