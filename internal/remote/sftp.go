package remote

import (
	"encoding/base64"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yarkm13/dropsync/internal/domain"
)

// SFTP status codes we act on.
const (
	sftpNoSuchFile       = 2
	sftpPermissionDenied = 3
	sftpNoConnection     = 6
	sftpConnectionLost   = 7
)

type SFTPConnector struct{}

func (s *SFTPConnector) Name() string { return "sftp" }

func (s *SFTPConnector) Connect(cred domain.ServerCredential, opts Options) (Session, error) {
	timeout := opts.timeout()
	addr := withDefaultPort(cred.Host, "22")

	hostKeyCallback, err := hostKeyCallbackFor(cred)
	if err != nil {
		return nil, domain.NewOpError(domain.ErrAuth, "hostkey", addr, err)
	}

	creds := newSecret(cred.Username, cred.Secret)
	config := &ssh.ClientConfig{
		User:            creds.username,
		Auth:            authMethods(creds.password),
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	conn, err := dialGated("tcp", addr, timeout)
	if err != nil {
		creds.Clear()
		return nil, classifySSHError("dial", addr, err)
	}
	done := conn.track()
	defer done()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		creds.Clear()
		return nil, classifySSHError("handshake", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		creds.Clear()
		return nil, classifySFTPError("sftp", addr, err)
	}

	cwd, err := sc.Getwd()
	if err != nil || cwd == "" {
		cwd = "/"
	}

	session := newSFTPSession(sc, client, creds, opts.Logger.With().Str("credential", cred.String()).Logger())
	session.cwd = cwd
	session.wire = conn
	session.log.Debug().Str("cwd", cwd).Msg("connected")
	return session, nil
}

// authMethods accepts either a base64 encoded private key or a password.
func authMethods(secret []byte) []ssh.AuthMethod {
	if keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(secret))); err == nil {
		if signer, err := ssh.ParsePrivateKey(keyBytes); err == nil {
			return []ssh.AuthMethod{ssh.PublicKeys(signer)}
		}
	}
	return []ssh.AuthMethod{ssh.Password(string(secret))}
}

func hostKeyCallbackFor(cred domain.ServerCredential) (ssh.HostKeyCallback, error) {
	if cred.HostKeyFingerprint != "" {
		want := cred.HostKeyFingerprint
		return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
			if got := ssh.FingerprintSHA256(key); got != want {
				return errors.Errorf("host key for %s is %s, expected %s", hostname, got, want)
			}
			return nil
		}, nil
	}
	knownHostsFile := cred.KnownHosts
	if knownHostsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Errorf("no known_hosts file configured: %w", err)
		}
		knownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(knownHostsFile)
}

// SFTPSession tracks the working directory client side, since SFTP has no cwd.
type SFTPSession struct {
	Lifecycle
	client *sftp.Client
	conn   io.Closer
	wire   *deadlineConn
	creds  *secret
	cwd    string
	log    zerolog.Logger
}

func newSFTPSession(client *sftp.Client, conn io.Closer, creds *secret, log zerolog.Logger) *SFTPSession {
	s := &SFTPSession{client: client, conn: conn, creds: creds, cwd: "/", log: log}
	s.MarkConnected()
	return s
}

// busy bounds the wire by the session timeout until the returned func runs.
func (s *SFTPSession) busy() func() {
	if s.wire == nil {
		return func() {}
	}
	return s.wire.track()
}

func (s *SFTPSession) resolve(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(s.cwd, name)
}

func (s *SFTPSession) ChangeDir(dir string) error {
	if err := s.Begin("cwd"); err != nil {
		return err
	}
	defer s.busy()()
	target := s.resolve(dir)
	fi, err := s.client.Stat(target)
	if err != nil {
		return classifySFTPError("cwd", target, err)
	}
	if !fi.IsDir() {
		return domain.NewOpError(domain.ErrNotFound, "cwd", target, errors.New("not a directory"))
	}
	s.cwd = target
	return nil
}

func (s *SFTPSession) List() ([]string, error) {
	if err := s.Begin("readdir"); err != nil {
		return nil, err
	}
	defer s.busy()()
	entries, err := s.client.ReadDir(s.cwd)
	if err != nil {
		return nil, classifySFTPError("readdir", s.cwd, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *SFTPSession) Fetch(name string, w io.Writer) (int64, error) {
	if err := s.Begin("open"); err != nil {
		return 0, err
	}
	defer s.busy()()
	p := s.resolve(name)
	f, err := s.client.Open(p)
	if err != nil {
		return 0, classifySFTPError("open", p, err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, classifySFTPError("read", p, err)
	}
	return n, nil
}

func (s *SFTPSession) Size(name string) (int64, error) {
	if err := s.Begin("stat"); err != nil {
		return 0, err
	}
	defer s.busy()()
	p := s.resolve(name)
	fi, err := s.client.Stat(p)
	if err != nil {
		return 0, classifySFTPError("stat", p, err)
	}
	return fi.Size(), nil
}

func (s *SFTPSession) Remove(name string) error {
	if err := s.Begin("remove"); err != nil {
		return err
	}
	defer s.busy()()
	p := s.resolve(name)
	err := s.client.Remove(p)
	if err == nil {
		return nil
	}
	if _, serr := s.client.Stat(p); serr != nil && errors.Is(serr, fs.ErrNotExist) {
		s.log.Debug().Str("file", p).Msg("already gone")
		return domain.NewOpError(domain.ErrNotFound, "remove", p, err)
	}
	return classifySFTPError("remove", p, err)
}

func (s *SFTPSession) Close() error {
	if !s.MarkClosed() {
		return nil
	}
	if s.creds != nil {
		s.creds.Clear()
	}
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		return domain.NewOpError(domain.ErrProtocol, "close", "", err)
	}
	s.log.Debug().Msg("disconnected")
	return nil
}

func classifySFTPError(op, p string, err error) error {
	if classified(err) {
		return err
	}
	var se *sftp.StatusError
	switch {
	case errors.Is(err, sftp.ErrSSHFxConnectionLost), errors.Is(err, sftp.ErrSSHFxNoConnection):
		return domain.NewOpError(domain.ErrTransientNetwork, op, p, err)
	case errors.Is(err, fs.ErrNotExist):
		return domain.NewOpError(domain.ErrNotFound, op, p, err)
	case errors.Is(err, fs.ErrPermission):
		return domain.NewOpError(domain.ErrPermission, op, p, err)
	case errors.As(err, &se):
		switch se.Code {
		case sftpNoSuchFile:
			return domain.NewOpError(domain.ErrNotFound, op, p, err)
		case sftpPermissionDenied:
			return domain.NewOpError(domain.ErrPermission, op, p, err)
		case sftpNoConnection, sftpConnectionLost:
			return domain.NewOpError(domain.ErrTransientNetwork, op, p, err)
		}
	case isTransient(err):
		return domain.NewOpError(domain.ErrTransientNetwork, op, p, err)
	}
	return domain.NewOpError(domain.ErrProtocol, op, p, err)
}

func classifySSHError(op, addr string, err error) error {
	var keyErr *knownhosts.KeyError
	switch {
	case errors.As(err, &keyErr):
		return domain.NewOpError(domain.ErrAuth, op, addr, err)
	case strings.Contains(err.Error(), "unable to authenticate"),
		strings.Contains(err.Error(), "host key"):
		return domain.NewOpError(domain.ErrAuth, op, addr, err)
	case isTransient(err):
		return domain.NewOpError(domain.ErrTransientNetwork, op, addr, err)
	}
	return domain.NewOpError(domain.ErrProtocol, op, addr, err)
}
