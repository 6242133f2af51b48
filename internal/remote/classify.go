package remote

import (
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
)

// classified reports whether err already carries an error kind, for example a
// local write failure surfacing through a transfer.
func classified(err error) bool {
	var opErr *domain.OpError
	return errors.As(err, &opErr)
}

// isTransient reports failures that may go away on a fresh connection.
func isTransient(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return true
	}
	for _, target := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		os.ErrDeadlineExceeded,
		net.ErrClosed,
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.ECONNABORTED,
		syscall.EPIPE,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func mentionsPermission(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "denied") ||
		strings.Contains(msg, "not allowed")
}
