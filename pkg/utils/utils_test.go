package utils

import (
	"path/filepath"
	"testing"
)

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDir(path); err != nil {
		t.Fatal(err)
	}
	exists, err := PathExists(path)
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}
	// second call is a no-op
	if err := EnsureDir(path); err != nil {
		t.Fatal(err)
	}
}

func TestPathExistsMissing(t *testing.T) {
	exists, err := PathExists(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("missing path reported as existing")
	}
}
