package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	random "github.com/mazen160/go-random"
	_ "modernc.org/sqlite"

	"readtx/lib/telemetry"
)

type Params struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
	// if unspecified, it will use `:memory:`
	DbPath string
}

type Result struct {
	DB *sql.DB
}

func Setup(t testing.TB, params Params) (Result, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	if params.DbSchema == "" {
		return Result{}, cleanup
	}
	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	sqlite, err := sql.Open("sqlite", dbpath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = sqlite.Exec(params.DbSchema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}

	return Result{
		DB: sqlite,
	}, cleanup
}

// WriteDownload drops a fixture file into a watched download directory,
// the way a finished browser download would appear.
func WriteDownload(t testing.TB, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(contents), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

// RandomMemo returns a short random purpose line for fixtures.
func RandomMemo(t testing.TB) string {
	t.Helper()
	s, err := random.String(12)
	if err != nil {
		t.Fatal(err)
	}
	return "memo " + s
}
