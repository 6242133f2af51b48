package config

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/batch"
	"github.com/yarkm13/dropsync/internal/domain"
)

// PromptFunc asks the operator for the secret of the named credential.
type PromptFunc func(label string) ([]byte, error)

// Jobs turns the configured servers into batch jobs, one per server, with
// directories in configuration order. Secrets come from password,
// password_env, the URL user info, or prompt, in that order.
func (c *Config) Jobs(prompt PromptFunc) ([]batch.Job, error) {
	jobs := make([]batch.Job, 0, len(c.Servers))
	for i, s := range c.Servers {
		u, err := parseServerURL(s.URL)
		if err != nil {
			return nil, errors.Errorf("server %d: %w", i+1, err)
		}
		cred := domain.ServerCredential{
			Scheme:             u.Scheme,
			Host:               u.Host,
			Username:           u.User.Username(),
			KnownHosts:         s.KnownHosts,
			HostKeyFingerprint: s.HostKeyFingerprint,
		}

		switch pass, inURL := u.User.Password(); {
		case s.Password != "":
			cred.Secret = []byte(s.Password)
		case s.PasswordEnv != "":
			v := os.Getenv(s.PasswordEnv)
			if v == "" {
				return nil, errors.Errorf("server %s: %s is not set", cred, s.PasswordEnv)
			}
			cred.Secret = []byte(v)
		case inURL:
			cred.Secret = []byte(pass)
		case prompt != nil:
			secret, err := prompt(cred.String())
			if err != nil {
				return nil, errors.Errorf("server %s: %w", cred, err)
			}
			cred.Secret = secret
		default:
			return nil, errors.Errorf("server %s: no password configured", cred)
		}

		job := batch.Job{Credential: cred}
		for _, d := range s.Directories {
			job.Tasks = append(job.Tasks, domain.RemoteDirectoryTask{
				RemotePath:    strings.TrimSpace(d.Remote),
				LocalBasePath: filepath.Clean(d.Local),
			})
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
