package transfer

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// Filter selects candidate files by canonical name.
type Filter struct {
	// Suffix is matched case-insensitively, e.g. ".pdf".
	Suffix string
	// Exclude holds doublestar globs, matched case-insensitively against the
	// full name and its base name.
	Exclude []string
}

func (f Filter) Validate() error {
	if f.Suffix == "" {
		return errors.New("suffix is required")
	}
	for _, p := range f.Exclude {
		if !doublestar.ValidatePattern(p) {
			return errors.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

func (f Filter) Match(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, strings.ToLower(f.Suffix)) {
		return false
	}
	base := path.Base(lower)
	for _, p := range f.Exclude {
		p = strings.ToLower(p)
		if ok, _ := doublestar.Match(p, lower); ok {
			return false
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return false
		}
	}
	return true
}
