package remote

import (
	"bytes"
	"io"
	"net/textproto"
	"strings"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarkm13/dropsync/internal/domain"
)

type fakeFTPConn struct {
	cwd      string
	files    map[string]string
	cwdErr   error
	nlstErr  error
	retrErr  error
	closeErr error
	deleErr  error
	quit     int
	closed   int
}

func (f *fakeFTPConn) ChangeDir(path string) error {
	if f.cwdErr != nil {
		return f.cwdErr
	}
	f.cwd = path
	return nil
}

func (f *fakeFTPConn) NameList(string) ([]string, error) {
	if f.nlstErr != nil {
		return nil, f.nlstErr
	}
	var names []string
	for n := range f.files {
		names = append(names, n)
	}
	return names, nil
}

type trackedBody struct {
	io.Reader
	conn *fakeFTPConn
}

func (b *trackedBody) Close() error {
	b.conn.closed++
	return b.conn.closeErr
}

func (f *fakeFTPConn) Retr(path string) (io.ReadCloser, error) {
	if f.retrErr != nil {
		return nil, f.retrErr
	}
	return &trackedBody{Reader: strings.NewReader(f.files[path]), conn: f}, nil
}

func (f *fakeFTPConn) FileSize(path string) (int64, error) {
	return int64(len(f.files[path])), nil
}

func (f *fakeFTPConn) Delete(path string) error {
	if f.deleErr != nil {
		return f.deleErr
	}
	delete(f.files, path)
	return nil
}

func (f *fakeFTPConn) Quit() error {
	f.quit++
	return nil
}

func reply(code int, msg string) error {
	return &textproto.Error{Code: code, Msg: msg}
}

func newTestFTPSession(conn *fakeFTPConn) *FTPSession {
	return newFTPSession(conn, newSecret("site", []byte("secret")), zerolog.Nop())
}

func TestClassifyFTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"login rejected", reply(530, "Login incorrect."), domain.ErrAuth},
		{"missing file", reply(550, "No such file or directory"), domain.ErrNotFound},
		{"forbidden file", reply(550, "Permission denied"), domain.ErrPermission},
		{"name not allowed", reply(553, "Could not create file."), domain.ErrPermission},
		{"busy", reply(421, "Too many connections"), domain.ErrTransientNetwork},
		{"unknown reply", reply(502, "Command not implemented"), domain.ErrProtocol},
		{"reset", syscall.ECONNRESET, domain.ErrTransientNetwork},
		{"eof", io.EOF, domain.ErrTransientNetwork},
		{"garbage", io.ErrShortWrite, domain.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyFTPError("op", "x", tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFTPSessionChangeDirMissing(t *testing.T) {
	s := newTestFTPSession(&fakeFTPConn{cwdErr: reply(550, "Failed to change directory.")})
	err := s.ChangeDir("/gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFTPSessionListEmptyDirectory(t *testing.T) {
	s := newTestFTPSession(&fakeFTPConn{nlstErr: reply(550, "No files found")})
	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFTPSessionFetchClosesResponse(t *testing.T) {
	conn := &fakeFTPConn{files: map[string]string{"a.pdf": "%PDF-1.4"}}
	s := newTestFTPSession(conn)

	var buf bytes.Buffer
	n, err := s.Fetch("a.pdf", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "%PDF-1.4", buf.String())
	assert.Equal(t, 1, conn.closed)
}

func TestFTPSessionFetchReportsFailureOnClose(t *testing.T) {
	conn := &fakeFTPConn{
		files:    map[string]string{"a.pdf": "partial"},
		closeErr: reply(426, "Connection closed; transfer aborted."),
	}
	s := newTestFTPSession(conn)

	_, err := s.Fetch("a.pdf", io.Discard)
	assert.ErrorIs(t, err, domain.ErrTransientNetwork)
}

func TestFTPSessionRemove(t *testing.T) {
	t.Run("already gone", func(t *testing.T) {
		conn := &fakeFTPConn{files: map[string]string{}, deleErr: reply(550, "Delete operation failed.")}
		s := newTestFTPSession(conn)
		assert.ErrorIs(t, s.Remove("a.pdf"), domain.ErrNotFound)
	})

	t.Run("still listed means forbidden", func(t *testing.T) {
		conn := &fakeFTPConn{files: map[string]string{"a.pdf": "x"}, deleErr: reply(550, "Delete operation failed.")}
		s := newTestFTPSession(conn)
		assert.ErrorIs(t, s.Remove("a.pdf"), domain.ErrPermission)
	})

	t.Run("deleted", func(t *testing.T) {
		conn := &fakeFTPConn{files: map[string]string{"a.pdf": "x"}}
		s := newTestFTPSession(conn)
		require.NoError(t, s.Remove("a.pdf"))
		assert.NotContains(t, conn.files, "a.pdf")
	})
}

func TestFTPSessionCloseIsIdempotent(t *testing.T) {
	conn := &fakeFTPConn{}
	s := newTestFTPSession(conn)
	assert.Equal(t, Connected, s.State())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, conn.quit)
	assert.Equal(t, Closed, s.State())
	assert.Nil(t, s.creds.password)

	_, err := s.List()
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.ErrorIs(t, s.ChangeDir("/x"), domain.ErrSessionClosed)
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t, "ftp.example.com:21", withDefaultPort("ftp.example.com", "21"))
	assert.Equal(t, "ftp.example.com:2121", withDefaultPort("ftp.example.com:2121", "21"))
}
