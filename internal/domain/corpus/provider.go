package corpus

import (
	"sync/atomic"

	"github.com/envlytics/analyte-resolver/pkg/errors"
)

// Provider hands out the currently installed snapshot.  Installation is an
// atomic pointer swap: in-flight resolutions keep the snapshot they started
// with while new ones pick up the replacement.
type Provider struct {
	current atomic.Pointer[Snapshot]
	stale   atomic.Bool
}

// NewProvider returns an empty provider; Active fails until the first
// Install.
func NewProvider() *Provider { return &Provider{} }

// Install makes s the active snapshot and clears the stale flag.
func (p *Provider) Install(s *Snapshot) {
	p.current.Store(s)
	p.stale.Store(false)
}

// Active returns the installed snapshot, or IndexUnavailable when no
// snapshot has ever been installed.  This is the only condition under which
// resolution fails outright.
func (p *Provider) Active() (*Snapshot, error) {
	s := p.current.Load()
	if s == nil {
		return nil, errors.New(errors.CodeIndexUnavailable, "no corpus snapshot installed")
	}
	return s, nil
}

// MarkStale flags the active snapshot as missing newly validated synonyms.
// Exact and fuzzy coverage of those synonyms, and their semantic inclusion,
// arrive with the next rebuild.
func (p *Provider) MarkStale() { p.stale.Store(true) }

// Stale reports whether a rebuild is due.
func (p *Provider) Stale() bool { return p.stale.Load() }
