// Package testutil provides shared test helpers for workdirs, size caches
// and archive fixtures.
package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/sizeindex"
	"github.com/starford/catcoverage/internal/storage"
)

// TestDB creates a temporary size cache database that is automatically
// cleaned up.
func TestDB(t *testing.T) *sizeindex.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "catcoverage-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := sizeindex.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkdir creates a temporary workdir.
func TestWorkdir(t *testing.T) *storage.Workdir {
	t.Helper()
	wd, err := storage.NewWorkdir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return wd
}

// WriteFile writes lines, each newline terminated, to name in wd.
func WriteFile(t *testing.T, wd *storage.Workdir, name string, lines ...string) {
	t.Helper()
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := wd.Write(name, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

// ScenarioTree is an archive of total (200, 5): /badc/cmip5 (100, 1),
// /badc/ukmo (50, 2), /neodc/tmp (10, 1) and (40, 1) at the root.
func ScenarioTree() *archive.Memory {
	return archive.NewMemory().
		AddFiles("/badc/cmip5", archive.Size{Bytes: 100, Files: 1}).
		AddFiles("/badc/ukmo", archive.Size{Bytes: 50, Files: 2}).
		AddFiles("/neodc/tmp", archive.Size{Bytes: 10, Files: 1}).
		AddFiles(archive.Root, archive.Size{Bytes: 40, Files: 1})
}

// ScenarioAnnotations annotates ScenarioTree as published, missing and
// ignore, in annotation file format.
var ScenarioAnnotations = []string{
	"/badc/cmip5 /badc/cmip5 published",
	"/badc/ukmo /badc/ukmo missing",
	"/neodc/tmp /neodc/tmp ignore",
}
