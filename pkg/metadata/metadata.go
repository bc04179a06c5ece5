// Package metadata identifies the SDK instance on every outgoing batch.
package metadata

import (
	"github.com/google/uuid"

	"github.com/rzbill/flare/pkg/storage"
)

// Version is the SDK version attached to batch metadata and printed by the
// CLI.
const Version = "0.4.0"

const sdkType = "flare-go"

// StableIDKey is where the per-install identifier lives in the substrate.
const StableIDKey = "flare/stable_id"

// Options configures a Provider.
type Options struct {
	// Store persists the stable ID across restarts. Nil means a fresh stable
	// ID per process.
	Store storage.Store
	// Extra is merged into every snapshot (appName, environment tier, ...).
	// Core keys win on collision.
	Extra map[string]string
}

// Provider supplies the metadata map attached to every outgoing batch. The
// session ID is fresh per process; the stable ID survives restarts when a
// store is available.
type Provider struct {
	sessionID string
	stableID  string
	extra     map[string]string
}

// NewProvider creates a provider, loading or minting the stable ID.
func NewProvider(opts Options) *Provider {
	p := &Provider{
		sessionID: uuid.NewString(),
		extra:     opts.Extra,
	}

	if opts.Store != nil {
		if v, ok := opts.Store.Get(StableIDKey); ok && v != "" {
			p.stableID = v
			return p
		}
	}
	p.stableID = uuid.NewString()
	if opts.Store != nil {
		// Best effort; an unwritable substrate degrades to per-process IDs.
		_ = opts.Store.Set(StableIDKey, p.stableID)
	}
	return p
}

// SessionID returns the per-process session identifier.
func (p *Provider) SessionID() string { return p.sessionID }

// StableID returns the per-install identifier.
func (p *Provider) StableID() string { return p.stableID }

// Snapshot returns a fresh copy of the metadata map.
func (p *Provider) Snapshot() map[string]string {
	m := make(map[string]string, len(p.extra)+4)
	for k, v := range p.extra {
		m[k] = v
	}
	m["sdkType"] = sdkType
	m["sdkVersion"] = Version
	m["sessionID"] = p.sessionID
	m["stableID"] = p.stableID
	return m
}
