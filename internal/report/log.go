package report

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/yarkm13/dropsync/internal/domain"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Report(e Event) {
	var ev *zerolog.Event
	switch e.Kind {
	case KindSaved, KindDeleted:
		ev = s.log.Info()
	case KindSkipped, KindNotFoundRemotely, KindCancelled:
		ev = s.log.Warn()
	default:
		ev = s.log.Error()
	}

	ev = ev.Str("event", string(e.Kind))
	if e.Credential != "" {
		ev = ev.Str("credential", e.Credential)
	}
	if e.RemotePath != "" {
		ev = ev.Str("remote", e.RemotePath)
	}
	if e.Name != "" {
		ev = ev.Str("file", e.Name)
	}
	if e.LocalPath != "" {
		ev = ev.Str("local", e.LocalPath).Int64("bytes", e.Bytes)
	} else if e.LocalBase != "" {
		ev = ev.Str("local_base", e.LocalBase)
	}
	if len(e.Failed) > 0 {
		ev = ev.Strs("failed", e.Failed)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err).Str("kind", domain.KindOf(e.Err).Error())
	}
	ev.Msg(message(e))
}

func message(e Event) string {
	switch e.Kind {
	case KindSaved:
		return "file transferred"
	case KindSaveFailed:
		return "file transfer failed"
	case KindSkipped:
		return "undecodable file name, skipping"
	case KindDeleted:
		return "remote file deleted"
	case KindNotFoundRemotely:
		return "file no longer on server, nothing to delete"
	case KindDeleteFailed:
		return "remote delete failed"
	case KindDirectoryFailures:
		return "failed to transfer: " + strings.Join(e.Failed, ", ")
	case KindTaskAborted:
		return "directory skipped"
	case KindConnectFailed:
		return "could not connect"
	case KindCancelled:
		return "run cancelled before this credential"
	}
	return string(e.Kind)
}
