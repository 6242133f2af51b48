package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yarkm13/dropsync/internal/report"
)

func sampleCatalog(t *testing.T) Catalog {
	t.Helper()
	var col Collector
	col.Report(report.Event{Kind: report.KindSaved, LocalBase: "/data/b", Name: "UC 0042.pdf", LocalPath: "/data/b/UC 0042.pdf", Bytes: 10, Credential: "ftp://b@h"})
	col.Report(report.Event{Kind: report.KindSaveFailed, LocalBase: "/data/b", Name: "lost.pdf"})
	col.Report(report.Event{Kind: report.KindSaved, LocalBase: "/data/a", Name: "7-11.pdf", LocalPath: "/data/a/7-11.pdf", Bytes: 3, Credential: "ftp://a@h"})
	col.Report(report.Event{Kind: report.KindDeleted, LocalBase: "/data/a", Name: "7-11.pdf"})
	return col.Build(map[string]int{"/data/a": 1, "/data/b": 1, "/data/c": 0}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
}

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"UC 0123-45.pdf":    "012345",
		"2024/invoice9.pdf": "9",
		"report.pdf":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Identifier(in), in)
	}
}

func TestCollectorBuild(t *testing.T) {
	c := sampleCatalog(t)

	assert.NotEmpty(t, c.RunID)
	assert.Equal(t, 2, c.Total())
	assert.Equal(t, []string{"/data/a", "/data/b", "/data/c"}, c.Destinations())
	require.Len(t, c.Entries, 2)
	assert.Equal(t, "7-11.pdf", c.Entries[0].Name)
	assert.Equal(t, "711", c.Entries[0].Identifier)
	assert.Equal(t, "0042", c.Entries[1].Identifier)
	assert.Equal(t, "ftp://b@h", c.Entries[1].Credential)
}

func TestConsoleWriter(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := sampleCatalog(t)

	require.NoError(t, (&ConsoleWriter{Out: &buf}).Write(context.Background(), c))
	assert.Equal(t,
		"transferred 1 file to /data/a\n"+
			"transferred 1 file to /data/b\n"+
			"transferred 0 files to /data/c\n"+
			"run "+c.RunID+": 2 files saved\n",
		buf.String())
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	c := sampleCatalog(t)

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.yaml")
		require.NoError(t, (&FileWriter{Path: path}).Write(context.Background(), c))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var got Catalog
		require.NoError(t, yaml.Unmarshal(data, &got))
		assert.Equal(t, c.RunID, got.RunID)
		assert.Equal(t, c.Tally, got.Tally)
		assert.Len(t, got.Entries, 2)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.JSON")
		require.NoError(t, (&FileWriter{Path: path}).Write(context.Background(), c))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, c.RunID, got["run_id"])
		assert.Len(t, got["entries"], 2)
	})

	t.Run("missing directory", func(t *testing.T) {
		err := (&FileWriter{Path: filepath.Join(dir, "nope", "c.yaml")}).Write(context.Background(), c)
		assert.Error(t, err)
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteAll(t *testing.T) {
	c := sampleCatalog(t)
	var buf bytes.Buffer
	bad := &FileWriter{Path: filepath.Join(t.TempDir(), "missing", "c.yaml")}
	err := WriteAll(context.Background(), c, bad, nil, &ConsoleWriter{Out: &buf})
	assert.Error(t, err)
	assert.NotEmpty(t, buf.String())
}

func TestPostgresWriter(t *testing.T) {
	dsn := os.Getenv("DROPSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DROPSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	w, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer w.Close()

	c := sampleCatalog(t)
	require.NoError(t, w.Write(ctx, c))

	var total int
	require.NoError(t, w.db.QueryRowContext(ctx, `SELECT total FROM dropsync_runs WHERE run_id = $1`, c.RunID).Scan(&total))
	assert.Equal(t, 2, total)

	var files int
	require.NoError(t, w.db.QueryRowContext(ctx, `SELECT count(*) FROM dropsync_files WHERE run_id = $1`, c.RunID).Scan(&files))
	assert.Equal(t, 2, files)
}
