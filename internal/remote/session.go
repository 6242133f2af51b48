package remote

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yarkm13/dropsync/internal/domain"
)

// Session is one authenticated connection to one remote host.
// Directory state is session-wide, so a Session must not be shared between
// goroutines.
type Session interface {
	// ChangeDir makes path the directory the other calls operate in.
	ChangeDir(path string) error
	// List returns the raw entry names of the current directory.
	List() ([]string, error)
	// Fetch streams the named file of the current directory into w.
	Fetch(name string, w io.Writer) (int64, error)
	// Remove deletes the named file. A file that is already gone is reported
	// with domain.ErrNotFound.
	Remove(name string) error
	// Close ends the session. Closing a closed session is a no-op.
	Close() error
	State() State
}

// Sizer is implemented by sessions that can report a remote file size.
type Sizer interface {
	Size(name string) (int64, error)
}

// Connector opens sessions for one transport.
type Connector interface {
	Connect(cred domain.ServerCredential, opts Options) (Session, error)
	Name() string
}

// Options tune a session.
type Options struct {
	// Timeout bounds dialing and every single read or write a call waits on.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

type State int

const (
	Disconnected State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle tracks the Disconnected -> Connected -> Closed progression of a session.
// Implementations embed it.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MarkConnected records a successful connect.
func (l *Lifecycle) MarkConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Disconnected {
		l.state = Connected
	}
}

// Begin returns ErrSessionClosed unless the session is connected.
func (l *Lifecycle) Begin(op string) error {
	if l.State() != Connected {
		return domain.NewOpError(domain.ErrSessionClosed, op, "", nil)
	}
	return nil
}

// MarkClosed moves the session to Closed and reports whether it was open before.
func (l *Lifecycle) MarkClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	wasOpen := l.state == Connected
	l.state = Closed
	return wasOpen
}
