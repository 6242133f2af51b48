package transfer

import (
	"io"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
)

// localWriter tags write failures as local so the transport does not mistake
// a full disk for a network problem.
type localWriter struct {
	w    io.Writer
	path string
}

func (l localWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if err != nil {
		return n, localError("write", l.path, err)
	}
	return n, nil
}

func localError(op, path string, err error) error {
	kind := domain.ErrLocalIO
	if errors.Is(err, os.ErrPermission) {
		kind = domain.ErrPermission
	}
	return domain.NewOpError(kind, op, path, err)
}

// saveRemoteFile streams fetch into an exclusive temporary file next to
// localPath, syncs it, lets verify inspect it, and renames it into place.
// On failure the temporary file is removed and localPath is untouched.
func saveRemoteFile(localPath string, fetch func(io.Writer) (int64, error), verify func(tmpPath string, n int64) error) (int64, error) {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, localError("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		return 0, localError("create", localPath, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := fetch(localWriter{w: tmp, path: tmpPath})
	if err != nil {
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		return n, localError("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return n, localError("close", tmpPath, err)
	}
	if verify != nil {
		if err := verify(tmpPath, n); err != nil {
			return n, err
		}
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		return n, localError("rename", localPath, err)
	}
	committed = true
	syncDir(dir)
	return n, nil
}

// syncDir persists the rename. Not every platform can fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
