// Package remotetest provides an in-memory remote file server and session for
// tests of the sync components.
package remotetest

import (
	"bytes"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/yarkm13/dropsync/internal/domain"
	"github.com/yarkm13/dropsync/internal/remote"
)

// Server is an in-memory directory tree with failure injection and a call log.
type Server struct {
	mu    sync.Mutex
	dirs  map[string]map[string][]byte
	order map[string][]string

	// Injected failures, keyed by directory (ChangeDirErr) or raw file name.
	ChangeDirErr map[string]error
	ListErr      error
	FetchErr     map[string]error
	RemoveErr    map[string]error
	// SizeOverride makes Size report a different value than the stored bytes.
	SizeOverride map[string]int64
	// AfterFetch runs after each successful fetch, with the lock released.
	AfterFetch func(name string)

	Fetched []string
	Removed []string
}

func NewServer() *Server {
	return &Server{
		dirs:         map[string]map[string][]byte{},
		order:        map[string][]string{},
		ChangeDirErr: map[string]error{},
		FetchErr:     map[string]error{},
		RemoveErr:    map[string]error{},
		SizeOverride: map[string]int64{},
	}
}

// Mkdir creates an empty directory.
func (s *Server) Mkdir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirLocked(path.Clean(dir))
}

func (s *Server) mkdirLocked(dir string) {
	if _, ok := s.dirs[dir]; !ok {
		s.dirs[dir] = map[string][]byte{}
	}
}

// Put stores a file. Listing order follows insertion order.
func (s *Server) Put(dir, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir = path.Clean(dir)
	s.mkdirLocked(dir)
	if _, ok := s.dirs[dir][name]; !ok {
		s.order[dir] = append(s.order[dir], name)
	}
	s.dirs[dir][name] = data
}

// Delete removes a file behind the session's back.
func (s *Server) Delete(dir, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(path.Clean(dir), name)
}

func (s *Server) deleteLocked(dir, name string) {
	delete(s.dirs[dir], name)
	kept := s.order[dir][:0]
	for _, n := range s.order[dir] {
		if n != name {
			kept = append(kept, n)
		}
	}
	s.order[dir] = kept
}

// Files returns the sorted names stored in dir.
func (s *Server) Files(dir string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for n := range s.dirs[path.Clean(dir)] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Session is a remote.Session over a Server.
type Session struct {
	remote.Lifecycle
	srv *Server
	cwd string
}

// NewSession returns a connected session rooted at "/".
func NewSession(srv *Server) *Session {
	s := &Session{srv: srv, cwd: "/"}
	s.MarkConnected()
	return s
}

func (s *Session) ChangeDir(dir string) error {
	if err := s.Begin("cwd"); err != nil {
		return err
	}
	dir = path.Clean(dir)
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	if err, ok := s.srv.ChangeDirErr[dir]; ok {
		return err
	}
	if _, ok := s.srv.dirs[dir]; !ok {
		return domain.NewOpError(domain.ErrNotFound, "cwd", dir, nil)
	}
	s.cwd = dir
	return nil
}

func (s *Session) List() ([]string, error) {
	if err := s.Begin("list"); err != nil {
		return nil, err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	if s.srv.ListErr != nil {
		return nil, s.srv.ListErr
	}
	return append([]string(nil), s.srv.order[s.cwd]...), nil
}

func (s *Session) Fetch(name string, w io.Writer) (int64, error) {
	if err := s.Begin("retr"); err != nil {
		return 0, err
	}
	s.srv.mu.Lock()
	s.srv.Fetched = append(s.srv.Fetched, name)
	if err, ok := s.srv.FetchErr[name]; ok {
		s.srv.mu.Unlock()
		return 0, err
	}
	data, ok := s.srv.dirs[s.cwd][name]
	hook := s.srv.AfterFetch
	s.srv.mu.Unlock()
	if !ok {
		return 0, domain.NewOpError(domain.ErrNotFound, "retr", name, nil)
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		return n, domain.NewOpError(domain.ErrLocalIO, "retr", name, err)
	}
	if hook != nil {
		hook(name)
	}
	return n, nil
}

func (s *Session) Size(name string) (int64, error) {
	if err := s.Begin("size"); err != nil {
		return 0, err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	if n, ok := s.srv.SizeOverride[name]; ok {
		return n, nil
	}
	data, ok := s.srv.dirs[s.cwd][name]
	if !ok {
		return 0, domain.NewOpError(domain.ErrNotFound, "size", name, nil)
	}
	return int64(len(data)), nil
}

func (s *Session) Remove(name string) error {
	if err := s.Begin("dele"); err != nil {
		return err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	s.srv.Removed = append(s.srv.Removed, name)
	if err, ok := s.srv.RemoveErr[name]; ok {
		return err
	}
	if _, ok := s.srv.dirs[s.cwd][name]; !ok {
		return domain.NewOpError(domain.ErrNotFound, "dele", name, nil)
	}
	s.srv.deleteLocked(s.cwd, name)
	return nil
}

func (s *Session) Close() error {
	s.MarkClosed()
	return nil
}

// Connector hands out sessions on per-username servers.
type Connector struct {
	mu      sync.Mutex
	Servers map[string]*Server
	// ConnectErrs are returned, in order, before a connect succeeds.
	ConnectErrs map[string][]error

	Attempts map[string]int
	Sessions []*Session
}

func NewConnector() *Connector {
	return &Connector{
		Servers:     map[string]*Server{},
		ConnectErrs: map[string][]error{},
		Attempts:    map[string]int{},
	}
}

func (c *Connector) Name() string { return "memory" }

func (c *Connector) Connect(cred domain.ServerCredential, _ remote.Options) (remote.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Attempts[cred.Username]++
	if errs := c.ConnectErrs[cred.Username]; len(errs) > 0 {
		c.ConnectErrs[cred.Username] = errs[1:]
		return nil, errs[0]
	}
	srv, ok := c.Servers[cred.Username]
	if !ok {
		return nil, domain.NewOpError(domain.ErrAuth, "login", cred.Username, nil)
	}
	s := NewSession(srv)
	c.Sessions = append(c.Sessions, s)
	return s, nil
}

// OpenSessions counts sessions that were never closed.
func (c *Connector) OpenSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.Sessions {
		if s.State() != remote.Closed {
			n++
		}
	}
	return n
}
