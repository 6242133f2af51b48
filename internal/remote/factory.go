package remote

import (
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
)

// ErrUnsupportedScheme is returned for a credential no connector accepts.
var ErrUnsupportedScheme = errors.Base("unsupported scheme")

// Factory picks a connector by credential scheme.
type Factory struct {
	connectors map[string]Connector
}

// NewFactory returns a factory serving ftp, ftps and sftp.
func NewFactory() *Factory {
	f := &Factory{connectors: map[string]Connector{}}
	f.Register("ftp", &FTPConnector{})
	f.Register("ftps", &FTPConnector{ExplicitTLS: true})
	f.Register("sftp", &SFTPConnector{})
	return f
}

// Register adds or replaces the connector for scheme.
func (f *Factory) Register(scheme string, c Connector) {
	f.connectors[strings.ToLower(scheme)] = c
}

// Accept reports whether a connector is registered for scheme.
func (f *Factory) Accept(scheme string) bool {
	_, ok := f.connectors[strings.ToLower(scheme)]
	return ok
}

func (f *Factory) Name() string { return "factory" }

// Connect dispatches to the connector registered for cred.Scheme.
func (f *Factory) Connect(cred domain.ServerCredential, opts Options) (Session, error) {
	c, ok := f.connectors[strings.ToLower(cred.Scheme)]
	if !ok {
		return nil, errors.Errorf("%w: %q", ErrUnsupportedScheme, cred.Scheme)
	}
	return c.Connect(cred, opts)
}
