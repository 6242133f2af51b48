// Package normalize turns raw remote directory entry names into canonical
// UTF-8 names. The transfer and reconcile phases share one Normalizer so they
// agree on what a file is called.
package normalize

import (
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/unicode/norm"

	"github.com/yarkm13/dropsync/internal/domain"
)

// DefaultCharset is the wire encoding assumed when none is configured.
const DefaultCharset = "utf-8"

type Normalizer struct {
	charset string
	enc     encoding.Encoding // nil for UTF-8
}

// New returns a Normalizer for names sent in charset, any IANA name.
func New(charset string) (*Normalizer, error) {
	if charset == "" || isUTF8(charset) {
		return &Normalizer{charset: DefaultCharset}, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, errors.Errorf("unknown charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, errors.Errorf("charset %q is not supported", charset)
	}
	return &Normalizer{charset: strings.ToLower(charset), enc: enc}, nil
}

func isUTF8(charset string) bool {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

func (n *Normalizer) Charset() string { return n.charset }

// Normalize returns the canonical name for raw, decoded and in Unicode NFC,
// or an error matching domain.ErrDecode. It never panics.
func (n *Normalizer) Normalize(raw string) (string, error) {
	name := raw
	if n.enc == nil {
		if !utf8.ValidString(raw) {
			return "", decodeError(raw, "invalid utf-8")
		}
	} else {
		decoded, err := n.enc.NewDecoder().String(raw)
		if err != nil {
			return "", decodeError(raw, err.Error())
		}
		if strings.ContainsRune(decoded, utf8.RuneError) && !strings.ContainsRune(raw, utf8.RuneError) {
			return "", decodeError(raw, "unmapped bytes for "+n.charset)
		}
		name = decoded
	}
	// Servers on some platforms store decomposed accents.
	name = norm.NFC.String(name)
	if err := checkLocal(raw, name); err != nil {
		return "", err
	}
	return name, nil
}

// Entry normalizes raw into a CandidateEntry.
func (n *Normalizer) Entry(raw string) domain.CandidateEntry {
	name, err := n.Normalize(raw)
	return domain.CandidateEntry{Raw: raw, Name: name, Err: err}
}

// checkLocal rejects names that would land outside the destination directory.
func checkLocal(raw, name string) error {
	switch {
	case name == "" || strings.TrimSpace(name) == "":
		return decodeError(raw, "empty name")
	case strings.ContainsRune(name, 0):
		return decodeError(raw, "contains NUL")
	case strings.Contains(name, `\`):
		return decodeError(raw, "contains backslash")
	case path.IsAbs(name) || !filepath.IsLocal(filepath.FromSlash(name)):
		return decodeError(raw, "escapes destination")
	}
	return nil
}

func decodeError(raw, reason string) error {
	return domain.NewOpError(domain.ErrDecode, "normalize", quoteBytes(raw), errors.New(reason))
}

// quoteBytes renders raw so undecodable bytes stay visible in logs.
func quoteBytes(raw string) string {
	q := strings.Builder{}
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		if r == utf8.RuneError && size == 1 {
			q.WriteString(`\x`)
			q.WriteByte("0123456789abcdef"[raw[i]>>4])
			q.WriteByte("0123456789abcdef"[raw[i]&0xf])
		} else {
			q.WriteString(raw[i : i+size])
		}
		i += size
	}
	return q.String()
}
