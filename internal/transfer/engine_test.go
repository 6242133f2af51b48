package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarkm13/dropsync/internal/domain"
	"github.com/yarkm13/dropsync/internal/normalize"
	"github.com/yarkm13/dropsync/internal/remote/remotetest"
	"github.com/yarkm13/dropsync/internal/report"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *report.Recorder) {
	t.Helper()
	n, err := normalize.New("")
	require.NoError(t, err)
	if opts.Filter.Suffix == "" {
		opts.Filter.Suffix = ".pdf"
	}
	rec := &report.Recorder{}
	return NewEngine(n, opts, rec, zerolog.Nop()), rec
}

func statuses(outcomes []domain.TransferOutcome) map[string]domain.TransferStatus {
	m := map[string]domain.TransferStatus{}
	for _, o := range outcomes {
		key := o.Name
		if key == "" {
			key = o.RawName
		}
		m[key] = o.Status
	}
	return m
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.part"))
	require.NoError(t, err)
	return matches
}

func TestEngineSavesMatchingFiles(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "report.pdf", []byte("%PDF report"))
	srv.Put("/in", "notes.txt", []byte("notes"))
	srv.Put("/in", "quarterly.PDF", []byte("%PDF quarterly"))
	local := t.TempDir()

	e, rec := newTestEngine(t, Options{VerifySize: true})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: local}, remotetest.NewSession(srv))
	require.NoError(t, err)

	assert.Equal(t, map[string]domain.TransferStatus{
		"report.pdf":    domain.Saved,
		"quarterly.PDF": domain.Saved,
	}, statuses(outcomes))
	assert.NotContains(t, srv.Fetched, "notes.txt")
	assert.Equal(t, []string{"report.pdf", "quarterly.PDF"}, rec.Names(report.KindSaved))
	assert.Zero(t, rec.Count(report.KindDirectoryFailures))

	data, err := os.ReadFile(filepath.Join(local, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF report", string(data))
	assert.Equal(t, filepath.Join(local, "quarterly.PDF"), outcomes[1].LocalPath)
	assert.EqualValues(t, len("%PDF quarterly"), outcomes[1].Bytes)
	assert.Empty(t, leftovers(t, local))
}

func TestEngineAbortsWhenDirectoryUnavailable(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "report.pdf", []byte("x"))
	srv.ChangeDirErr["/in"] = domain.NewOpError(domain.ErrPermission, "cwd", "/in", nil)

	e, rec := newTestEngine(t, Options{})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: t.TempDir()}, remotetest.NewSession(srv))
	assert.ErrorIs(t, err, domain.ErrPermission)
	assert.Empty(t, outcomes)
	assert.Empty(t, srv.Fetched)
	assert.Empty(t, rec.Events())
}

func TestEngineAbortsWhenListingFails(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Mkdir("/in")
	srv.ListErr = domain.NewOpError(domain.ErrTransientNetwork, "nlst", "", nil)

	e, _ := newTestEngine(t, Options{})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: t.TempDir()}, remotetest.NewSession(srv))
	assert.ErrorIs(t, err, domain.ErrTransientNetwork)
	assert.Empty(t, outcomes)
}

func TestEngineSkipsUndecodableNames(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "relat\xf3rio.pdf", []byte("x"))
	srv.Put("/in", "../escape.pdf", []byte("x"))
	srv.Put("/in", "ok.pdf", []byte("ok"))
	local := t.TempDir()

	e, rec := newTestEngine(t, Options{})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: local}, remotetest.NewSession(srv))
	require.NoError(t, err)

	require.Len(t, outcomes, 3)
	assert.Equal(t, domain.Skipped, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrDecode)
	assert.Equal(t, domain.Skipped, outcomes[1].Status)
	assert.Equal(t, domain.Saved, outcomes[2].Status)
	assert.Equal(t, []string{"ok.pdf"}, srv.Fetched)
	assert.Equal(t, 2, rec.Count(report.KindSkipped))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(local), "escape.pdf"))
}

func TestEngineSkipsDuplicateCanonicalNames(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "cafe\u0301.pdf", []byte("decomposed"))
	srv.Put("/in", "caf\u00e9.pdf", []byte("composed"))

	e, _ := newTestEngine(t, Options{})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: t.TempDir()}, remotetest.NewSession(srv))
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, domain.Saved, outcomes[0].Status)
	assert.Equal(t, "caf\u00e9.pdf", outcomes[0].Name)
	assert.Equal(t, "cafe\u0301.pdf", outcomes[0].RawName)
	assert.Equal(t, domain.Skipped, outcomes[1].Status)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrDecode)
	assert.Equal(t, []string{"cafe\u0301.pdf"}, srv.Fetched)
}

func TestEngineIsolatesFailures(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "a.pdf", []byte("a"))
	srv.Put("/in", "b.pdf", []byte("b"))
	srv.Put("/in", "c.pdf", []byte("c"))
	srv.FetchErr["b.pdf"] = domain.NewOpError(domain.ErrTransientNetwork, "retr", "b.pdf", nil)
	local := t.TempDir()

	e, rec := newTestEngine(t, Options{})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: local}, remotetest.NewSession(srv))
	require.NoError(t, err)

	assert.Equal(t, map[string]domain.TransferStatus{
		"a.pdf": domain.Saved,
		"b.pdf": domain.SaveFailed,
		"c.pdf": domain.Saved,
	}, statuses(outcomes))
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrTransientNetwork)
	assert.NoFileExists(t, filepath.Join(local, "b.pdf"))
	assert.FileExists(t, filepath.Join(local, "c.pdf"))
	assert.Empty(t, leftovers(t, local))

	events := rec.Events()
	last := events[len(events)-1]
	assert.Equal(t, report.KindDirectoryFailures, last.Kind)
	assert.Equal(t, []string{"b.pdf"}, last.Failed)
}

func TestEngineSizeMismatch(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "short.pdf", []byte("abc"))
	srv.SizeOverride["short.pdf"] = 10
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "short.pdf"), []byte("previous"), 0644))

	e, _ := newTestEngine(t, Options{VerifySize: true})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: local}, remotetest.NewSession(srv))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.SaveFailed, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrTransientNetwork)

	data, err := os.ReadFile(filepath.Join(local, "short.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	assert.Empty(t, leftovers(t, local))
}

func TestEngineVerifierRejects(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "broken.pdf", []byte("this is not a pdf"))
	local := t.TempDir()

	e, _ := newTestEngine(t, Options{Verifier: NewPDFVerifier()})
	outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: local}, remotetest.NewSession(srv))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.SaveFailed, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrProtocol)
	assert.NoFileExists(t, filepath.Join(local, "broken.pdf"))
}

func TestEngineLocalBase(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "a.pdf", []byte("a"))

	t.Run("missing", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{})
		base := filepath.Join(t.TempDir(), "absent")
		_, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: base}, remotetest.NewSession(srv))
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoDirExists(t, base)
	})

	t.Run("created on demand", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{CreateLocalBase: true})
		base := filepath.Join(t.TempDir(), "new", "dir")
		outcomes, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: base}, remotetest.NewSession(srv))
		require.NoError(t, err)
		assert.Equal(t, 1, domain.CountStatus(outcomes, domain.Saved))
		assert.FileExists(t, filepath.Join(base, "a.pdf"))
	})

	t.Run("not a directory", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{CreateLocalBase: true})
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0644))
		_, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: file}, remotetest.NewSession(srv))
		assert.ErrorIs(t, err, domain.ErrLocalIO)
	})
}

func TestEngineOverwritesExistingFile(t *testing.T) {
	srv := remotetest.NewServer()
	srv.Put("/in", "a.pdf", []byte("new"))
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "a.pdf"), []byte("old"), 0644))

	e, _ := newTestEngine(t, Options{})
	_, err := e.Run(domain.RemoteDirectoryTask{RemotePath: "/in", LocalBasePath: local}, remotetest.NewSession(srv))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(local, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
