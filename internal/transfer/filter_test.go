package transfer

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarkm13/dropsync/internal/domain"
)

func TestFilterMatch(t *testing.T) {
	f := Filter{Suffix: ".pdf", Exclude: []string{"draft-*", "tmp/**"}}
	require.NoError(t, f.Validate())

	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"REPORT.PDF", true},
		{"report.pdf.txt", false},
		{"notes.txt", false},
		{"Draft-1.pdf", false},
		{"archive/draft-2.pdf", false},
		{"tmp/a/b.pdf", false},
		{"2024/report.pdf", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.name))
		})
	}
}

func TestFilterValidate(t *testing.T) {
	assert.Error(t, Filter{}.Validate())
	assert.Error(t, Filter{Suffix: ".pdf", Exclude: []string{"[unclosed"}}.Validate())
	assert.NoError(t, Filter{Suffix: ".xml"}.Validate())
}

func TestSaveRemoteFile(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "sub", "a.pdf")

	n, err := saveRemoteFile(dst, func(w io.Writer) (int64, error) {
		return io.Copy(w, strings.NewReader("payload"))
	}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	t.Run("fetch failure leaves nothing behind", func(t *testing.T) {
		failing := filepath.Join(dir, "b.pdf")
		_, err := saveRemoteFile(failing, func(w io.Writer) (int64, error) {
			_, _ = w.Write([]byte("partial"))
			return 7, domain.NewOpError(domain.ErrTransientNetwork, "retr", "b.pdf", nil)
		}, nil)
		assert.ErrorIs(t, err, domain.ErrTransientNetwork)
		assert.NoFileExists(t, failing)
		assert.Empty(t, leftovers(t, dir))
	})

	t.Run("verify sees the complete file", func(t *testing.T) {
		target := filepath.Join(dir, "c.pdf")
		rejected := errors.New("rejected")
		_, err := saveRemoteFile(target, func(w io.Writer) (int64, error) {
			return io.Copy(w, strings.NewReader("abc"))
		}, func(tmpPath string, n int64) error {
			data, err := os.ReadFile(tmpPath)
			require.NoError(t, err)
			assert.Equal(t, "abc", string(data))
			assert.EqualValues(t, 3, n)
			return rejected
		})
		assert.ErrorIs(t, err, rejected)
		assert.NoFileExists(t, target)
		assert.Empty(t, leftovers(t, dir))
	})
}

func TestLocalError(t *testing.T) {
	assert.ErrorIs(t, localError("write", "x", os.ErrPermission), domain.ErrPermission)
	assert.ErrorIs(t, localError("write", "x", errors.New("disk full")), domain.ErrLocalIO)
}
