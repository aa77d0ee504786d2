package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunOfflineCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, runOffline(options{cmd: "create", dir: dir, name: "add donor regions"}, &out))
	require.Contains(t, out.String(), "created")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "_add_donor_regions.sql")

	out.Reset()
	require.NoError(t, runOffline(options{cmd: "validate", dir: dir}, &out))
	require.Contains(t, out.String(), "migrations valid")
}

func TestRunOfflineValidatesEmbeddedMigrations(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runOffline(options{cmd: "validate"}, &out))
}

func TestRunOfflineRejectsBadInput(t *testing.T) {
	require.Error(t, runOffline(options{cmd: "create", dir: t.TempDir()}, &bytes.Buffer{}))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sql"), []byte("select 1;"), 0o644))
	require.Error(t, runOffline(options{cmd: "validate", dir: dir}, &bytes.Buffer{}))

	require.ErrorIs(t, runOffline(options{cmd: "up"}, &bytes.Buffer{}), errNeedsDatabase)
}
