package remote

import (
	"crypto/tls"
	"io"
	"net"
	"net/textproto"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
)

// FTP reply codes we act on.
const (
	ftpNeedAccount      = 332
	ftpNotLoggedIn      = 530
	ftpNeedAccountStore = 532
	ftpFileUnavailable  = 550
	ftpNameNotAllowed   = 553
)

type FTPConnector struct {
	// ExplicitTLS upgrades the control and data connections with AUTH TLS.
	ExplicitTLS bool
}

func (f *FTPConnector) Name() string {
	if f.ExplicitTLS {
		return "ftps"
	}
	return "ftp"
}

func (f *FTPConnector) Connect(cred domain.ServerCredential, opts Options) (Session, error) {
	timeout := opts.timeout()
	addr := withDefaultPort(cred.Host, "21")

	dialOpts := []ftp.DialOption{ftp.DialWithTimeout(timeout)}
	if f.ExplicitTLS {
		host, _, _ := net.SplitHostPort(addr)
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}))
	} else {
		dialOpts = append(dialOpts, ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return dialTimeout(network, address, timeout)
		}))
	}

	c, err := ftp.Dial(addr, dialOpts...)
	if err != nil {
		return nil, classifyFTPError("dial", addr, err)
	}

	creds := newSecret(cred.Username, cred.Secret)
	// Login also switches the transfer type to binary (TYPE I).
	if err := c.Login(creds.username, string(creds.password)); err != nil {
		_ = c.Quit()
		creds.Clear()
		return nil, classifyFTPError("login", cred.Username, err)
	}

	s := newFTPSession(serverConn{c}, creds, opts.Logger.With().Str("credential", cred.String()).Logger())
	s.log.Debug().Msg("connected")
	return s, nil
}

// ftpConn is the part of *ftp.ServerConn the session uses.
type ftpConn interface {
	ChangeDir(path string) error
	NameList(path string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	FileSize(path string) (int64, error)
	Delete(path string) error
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

// FTPSession is a directory-scoped session over one FTP control connection.
type FTPSession struct {
	Lifecycle
	client ftpConn
	creds  *secret
	log    zerolog.Logger
}

func newFTPSession(c ftpConn, creds *secret, log zerolog.Logger) *FTPSession {
	s := &FTPSession{client: c, creds: creds, log: log}
	s.MarkConnected()
	return s
}

func (f *FTPSession) ChangeDir(path string) error {
	if err := f.Begin("cwd"); err != nil {
		return err
	}
	if err := f.client.ChangeDir(path); err != nil {
		return classifyFTPError("cwd", path, err)
	}
	return nil
}

func (f *FTPSession) List() ([]string, error) {
	if err := f.Begin("nlst"); err != nil {
		return nil, err
	}
	names, err := f.client.NameList("")
	if err != nil {
		// Many servers answer NLST on an empty directory with 550.
		if replyCode(err) == ftpFileUnavailable && !mentionsPermission(err.Error()) {
			f.log.Debug().Err(err).Msg("empty listing")
			return nil, nil
		}
		return nil, classifyFTPError("nlst", "", err)
	}
	return names, nil
}

func (f *FTPSession) Fetch(name string, w io.Writer) (int64, error) {
	if err := f.Begin("retr"); err != nil {
		return 0, err
	}
	r, err := f.client.Retr(name)
	if err != nil {
		return 0, classifyFTPError("retr", name, err)
	}
	n, err := io.Copy(w, r)
	// The response must be closed before the next command, and a failed
	// transfer is only reported on close.
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, classifyFTPError("retr", name, err)
	}
	return n, nil
}

func (f *FTPSession) Size(name string) (int64, error) {
	if err := f.Begin("size"); err != nil {
		return 0, err
	}
	n, err := f.client.FileSize(name)
	if err != nil {
		return 0, classifyFTPError("size", name, err)
	}
	return n, nil
}

func (f *FTPSession) Remove(name string) error {
	if err := f.Begin("dele"); err != nil {
		return err
	}
	err := f.client.Delete(name)
	if err == nil {
		return nil
	}
	if replyCode(err) == ftpFileUnavailable {
		// 550 means either gone or forbidden; the listing tells which.
		if present, lerr := f.listed(name); lerr == nil && !present {
			f.log.Debug().Str("file", name).Msg("already gone")
			return domain.NewOpError(domain.ErrNotFound, "dele", name, err)
		}
		return domain.NewOpError(domain.ErrPermission, "dele", name, err)
	}
	return classifyFTPError("dele", name, err)
}

func (f *FTPSession) listed(name string) (bool, error) {
	names, err := f.client.NameList("")
	if err != nil {
		if replyCode(err) == ftpFileUnavailable {
			return false, nil
		}
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *FTPSession) Close() error {
	if !f.MarkClosed() {
		return nil
	}
	if f.creds != nil {
		f.creds.Clear()
	}
	if err := f.client.Quit(); err != nil {
		return classifyFTPError("quit", "", err)
	}
	f.log.Debug().Msg("disconnected")
	return nil
}

func replyCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	return 0
}

// classifyFTPError maps a reply or network failure onto the error kinds.
func classifyFTPError(op, path string, err error) error {
	if classified(err) {
		return err
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch code := tpErr.Code; {
		case code == ftpNotLoggedIn || code == ftpNeedAccount:
			return domain.NewOpError(domain.ErrAuth, op, path, err)
		case code == ftpFileUnavailable && mentionsPermission(tpErr.Msg):
			return domain.NewOpError(domain.ErrPermission, op, path, err)
		case code == ftpFileUnavailable:
			return domain.NewOpError(domain.ErrNotFound, op, path, err)
		case code == ftpNameNotAllowed || code == ftpNeedAccountStore:
			return domain.NewOpError(domain.ErrPermission, op, path, err)
		case code >= 400 && code < 500:
			return domain.NewOpError(domain.ErrTransientNetwork, op, path, err)
		default:
			return domain.NewOpError(domain.ErrProtocol, op, path, err)
		}
	}
	if isTransient(err) {
		return domain.NewOpError(domain.ErrTransientNetwork, op, path, err)
	}
	return domain.NewOpError(domain.ErrProtocol, op, path, err)
}

func withDefaultPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}
