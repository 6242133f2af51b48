package domain

import "fmt"

// ServerCredential identifies one account on one remote host.
// Secret is never written anywhere by dropsync.
type ServerCredential struct {
	Scheme   string // ftp, ftps or sftp
	Host     string // host:port
	Username string
	Secret   []byte

	// SFTP host key checking. KnownHosts is a known_hosts file path,
	// HostKeyFingerprint a pinned "SHA256:..." fingerprint.
	KnownHosts         string
	HostKeyFingerprint string
}

func (c ServerCredential) String() string {
	return fmt.Sprintf("%s://%s@%s", c.Scheme, c.Username, c.Host)
}

// RemoteDirectoryTask is one remote directory drained into one local base path.
type RemoteDirectoryTask struct {
	RemotePath    string
	LocalBasePath string
}

func (t RemoteDirectoryTask) String() string {
	return fmt.Sprintf("%s -> %s", t.RemotePath, t.LocalBasePath)
}

// CandidateEntry is a raw listing name with its decoded form.
// Err is set (and Name empty) when the raw name could not be decoded.
type CandidateEntry struct {
	Raw  string
	Name string
	Err  error
}

type TransferStatus int

const (
	Saved TransferStatus = iota
	SaveFailed
	Skipped
)

func (s TransferStatus) String() string {
	switch s {
	case Saved:
		return "saved"
	case SaveFailed:
		return "save_failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("transfer_status(%d)", int(s))
	}
}

// TransferOutcome is the terminal record of one candidate in the transfer phase.
type TransferOutcome struct {
	RawName   string
	Name      string
	Status    TransferStatus
	LocalPath string // set when Saved
	Bytes     int64
	Err       error
}

type ReconcileStatus int

const (
	Deleted ReconcileStatus = iota
	NotFoundRemotely
	DeleteFailed
)

func (s ReconcileStatus) String() string {
	switch s {
	case Deleted:
		return "deleted"
	case NotFoundRemotely:
		return "not_found_remotely"
	case DeleteFailed:
		return "delete_failed"
	default:
		return fmt.Sprintf("reconcile_status(%d)", int(s))
	}
}

// ReconcileOutcome is the terminal record of one saved file in the delete phase.
type ReconcileOutcome struct {
	Name   string
	Status ReconcileStatus
	Err    error
}

// SavedOutcomes returns the Saved outcomes, in order.
func SavedOutcomes(outcomes []TransferOutcome) []TransferOutcome {
	var saved []TransferOutcome
	for _, o := range outcomes {
		if o.Status == Saved {
			saved = append(saved, o)
		}
	}
	return saved
}

// CountStatus counts outcomes with the given status.
func CountStatus(outcomes []TransferOutcome, status TransferStatus) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
