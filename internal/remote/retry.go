package remote

import (
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
)

// Sleep is swapped out by tests.
var Sleep = time.Sleep

// ConnectWithRetry connects, retrying only transient network failures.
// The n-th retry waits n seconds.
func ConnectWithRetry(c Connector, cred domain.ServerCredential, opts Options, attempts int) (Session, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := time.Second * time.Duration(attempt)
			opts.Logger.Warn().
				Err(err).
				Str("credential", cred.String()).
				Str("transport", c.Name()).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("connect failed, retrying")
			Sleep(wait)
		}
		var s Session
		s, err = c.Connect(cred, opts)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, domain.ErrTransientNetwork) {
			return nil, err
		}
	}
	return nil, errors.Errorf("failed after %d attempts: %w", attempts, err)
}
