package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	migrateTestFileCount    = 6
	migrateTestSuccess      = "success"
	migrateTestFactoryError = "factory error"
)

// mockMigrator implements the migrator interface for testing.
type mockMigrator struct {
	upErr      error
	downErr    error
	stepsErr   error
	versionVal uint
	dirty      bool
	versionErr error
}

func (m *mockMigrator) Up() error         { return m.upErr }
func (m *mockMigrator) Down() error       { return m.downErr }
func (m *mockMigrator) Steps(_ int) error { return m.stepsErr }
func (m *mockMigrator) Version() (version uint, dirty bool, err error) {
	return m.versionVal, m.dirty, m.versionErr
}

var migrationFiles = []string{
	"000001_elements.up.sql",
	"000001_elements.down.sql",
	"000002_element_config.up.sql",
	"000002_element_config.down.sql",
	"000003_config_events.up.sql",
	"000003_config_events.down.sql",
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, migrateTestFileCount)

	fileNames := make(map[string]bool)
	for _, e := range entries {
		fileNames[e.Name()] = true
	}

	for _, expected := range migrationFiles {
		assert.True(t, fileNames[expected], "expected migration file %s to exist", expected)
	}
}

func TestMigrationFilesNotEmpty(t *testing.T) {
	for _, file := range migrationFiles {
		content, err := migrations.ReadFile("migrations/" + file)
		assert.NoError(t, err, "failed to read %s", file)
		assert.NotEmpty(t, content, "migration file %s should not be empty", file)
	}
}

func TestMigrationUpAndDownFiles(t *testing.T) {
	for _, file := range migrationFiles {
		content, err := migrations.ReadFile("migrations/" + file)
		require.NoError(t, err)
		if strings.HasSuffix(file, ".up.sql") {
			assert.Contains(t, string(content), "CREATE TABLE", "up migration %s should contain CREATE TABLE", file)
		} else {
			assert.Contains(t, string(content), "DROP TABLE", "down migration %s should contain DROP TABLE", file)
		}
	}
}

func TestRun(t *testing.T) {
	origFactory := migratorFactory
	defer func() { migratorFactory = origFactory }()

	t.Run(migrateTestSuccess, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{versionVal: 2}, nil
		}

		err := Run(nil)
		assert.NoError(t, err)
	})

	t.Run("no change is not an error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{upErr: migrate.ErrNoChange, versionVal: 2}, nil
		}

		err := Run(nil)
		assert.NoError(t, err)
	})

	t.Run("up error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{upErr: errors.New("up failed")}, nil
		}

		err := Run(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "running migrations")
	})

	t.Run(migrateTestFactoryError, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return nil, errors.New("factory failed")
		}

		err := Run(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "factory failed")
	})

	t.Run("version error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{versionErr: errors.New("version failed")}, nil
		}

		err := Run(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "getting migration version")
	})

	t.Run("nil version is not an error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{versionErr: migrate.ErrNilVersion}, nil
		}

		err := Run(nil)
		assert.NoError(t, err)
	})

	t.Run("dirty state logs warning", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{versionVal: 2, dirty: true}, nil
		}

		err := Run(nil)
		assert.NoError(t, err)
	})
}

func TestVersion(t *testing.T) {
	origFactory := migratorFactory
	defer func() { migratorFactory = origFactory }()

	t.Run(migrateTestSuccess, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{versionVal: 5, dirty: false}, nil
		}

		version, dirty, err := Version(nil)
		assert.NoError(t, err)
		assert.Equal(t, uint(5), version)
		assert.False(t, dirty)
	})

	t.Run(migrateTestFactoryError, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return nil, errors.New("factory failed")
		}

		_, _, err := Version(nil)
		assert.Error(t, err)
	})
}

func TestDown(t *testing.T) {
	origFactory := migratorFactory
	defer func() { migratorFactory = origFactory }()

	t.Run(migrateTestSuccess, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{}, nil
		}

		err := Down(nil)
		assert.NoError(t, err)
	})

	t.Run("no change is not an error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{downErr: migrate.ErrNoChange}, nil
		}

		err := Down(nil)
		assert.NoError(t, err)
	})

	t.Run("down error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{downErr: errors.New("down failed")}, nil
		}

		err := Down(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "rolling back migrations")
	})

	t.Run(migrateTestFactoryError, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return nil, errors.New("factory failed")
		}

		err := Down(nil)
		assert.Error(t, err)
	})
}

func TestSteps(t *testing.T) {
	origFactory := migratorFactory
	defer func() { migratorFactory = origFactory }()

	t.Run(migrateTestSuccess, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{}, nil
		}

		err := Steps(nil, 1)
		assert.NoError(t, err)
	})

	t.Run("no change is not an error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{stepsErr: migrate.ErrNoChange}, nil
		}

		err := Steps(nil, 1)
		assert.NoError(t, err)
	})

	t.Run("steps error", func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return &mockMigrator{stepsErr: errors.New("steps failed")}, nil
		}

		err := Steps(nil, 1)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "stepping migrations")
	})

	t.Run(migrateTestFactoryError, func(t *testing.T) {
		migratorFactory = func(_ *sql.DB) (migrator, error) {
			return nil, errors.New("factory failed")
		}

		err := Steps(nil, 1)
		assert.Error(t, err)
	})
}

func TestMigration002_UpContent(t *testing.T) {
	content, err := migrations.ReadFile("migrations/000002_element_config.up.sql")
	require.NoError(t, err)
	migrationSQL := string(content)

	expectedColumns := []string{
		"revision_id", "element_id", "series_name", "state", "content_type",
		"content_hash", "content", "comment", "creator", "modified_at", "modified_seq",
	}
	for _, col := range expectedColumns {
		assert.Contains(t, migrationSQL, col, "up migration should contain column %s", col)
	}

	// Lookup index for live-state checks.
	assert.Contains(t, migrationSQL, "(element_id, series_name, state)")

	// Single ACTIVE and single CANDIDATE per series.
	assert.Contains(t, migrationSQL, "idx_element_config_single_active")
	assert.Contains(t, migrationSQL, "WHERE state = 'ACTIVE'")
	assert.Contains(t, migrationSQL, "idx_element_config_single_candidate")
	assert.Contains(t, migrationSQL, "WHERE state = 'CANDIDATE'")
	assert.Contains(t, migrationSQL, "ON DELETE CASCADE")
}

// TestMigration003_ColumnConsistency verifies that the config_events columns
// appear in the audit store INSERT and SELECT column lists.
func TestMigration003_ColumnConsistency(t *testing.T) {
	migrationContent, err := migrations.ReadFile("migrations/000003_config_events.up.sql")
	require.NoError(t, err)

	colRe := regexp.MustCompile(`(?m)^\s+(\w+)\s+(?:TEXT|TIMESTAMPTZ|BOOLEAN|INTEGER|DATE)`)
	matches := colRe.FindAllStringSubmatch(string(migrationContent), -1)
	require.NotEmpty(t, matches, "migration should declare columns")

	storeSource, err := os.ReadFile("../../audit/postgres/store.go")
	require.NoError(t, err)
	storeStr := string(storeSource)

	insertRe := regexp.MustCompile(`INSERT INTO config_events\s*\(([^)]+)\)`)
	insertMatch := insertRe.FindStringSubmatch(storeStr)
	require.Len(t, insertMatch, 2, "store.go should contain INSERT INTO config_events(...)")

	for _, m := range matches {
		assert.Contains(t, insertMatch[1], m[1],
			"column %q of config_events must appear in the store INSERT column list", m[1])
	}
}

func TestMigrationTablesHaveConsumers(t *testing.T) {
	// 1. Extract all table names from CREATE TABLE statements in up migrations.
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)

	createTableRe := regexp.MustCompile(`(?i)CREATE TABLE\s+(?:IF NOT EXISTS\s+)?(\w+)`)

	var tables []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		content, readErr := migrations.ReadFile("migrations/" + entry.Name())
		require.NoError(t, readErr)

		matches := createTableRe.FindAllStringSubmatch(string(content), -1)
		for _, m := range matches {
			table := m[1]
			tables = append(tables, table)
		}
	}
	require.NotEmpty(t, tables, "migrations should contain CREATE TABLE statements")

	// 2. Collect all non-test, non-migration Go source files under pkg/.
	pkgRoot := "../../.."
	var goFiles []string
	collectErr := collectGoSourceFiles(pkgRoot+"/pkg", &goFiles)
	require.NoError(t, collectErr, "failed to walk pkg/ directory")
	require.NotEmpty(t, goFiles, "should find Go source files under pkg/")

	// 3. Read all source files into a single corpus.
	var corpus strings.Builder
	for _, path := range goFiles {
		content, readErr := os.ReadFile(path) //nolint:gosec // test reads source files, not user input
		require.NoError(t, readErr)
		corpus.Write(content)  //nolint:revive // strings.Builder.Write never returns an error
		corpus.WriteByte('\n') //nolint:revive // strings.Builder.WriteByte never returns an error
	}
	source := corpus.String()

	// 4. For each table, verify at least one DML reference exists.
	dmlPatterns := []string{
		`INSERT INTO %s`,
		`FROM %s`,
		`UPDATE %s`,
		`DELETE FROM %s`,
		`From("%s")`,
		`Insert("%s")`,
		`Update("%s")`,
		`Delete("%s")`,
	}

	for _, table := range tables {
		found := false
		for _, pattern := range dmlPatterns {
			if strings.Contains(source, strings.ReplaceAll(
				pattern, "%s", table,
			)) {
				found = true
				break
			}
		}
		assert.True(t, found,
			"table %q is created by a migration but no non-test Go code references it "+
				"(INSERT, SELECT, UPDATE, or DELETE). Either wire up the table or remove the migration.",
			table)
	}
}

// collectGoSourceFiles walks dir recursively and appends non-test, non-migration
// Go source file paths to dst.
func collectGoSourceFiles(dir string, dst *[]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		path := dir + "/" + entry.Name()
		if entry.IsDir() {
			if entry.Name() == "migrate" || entry.Name() == "vendor" {
				continue // skip migration SQL and vendor
			}
			if err := collectGoSourceFiles(path, dst); err != nil {
				return err
			}
			continue
		}
		if strings.HasSuffix(entry.Name(), ".go") && !strings.HasSuffix(entry.Name(), "_test.go") {
			*dst = append(*dst, path)
		}
	}
	return nil
}
