package resolution

import (
	"sync"

	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// conflictDelta is the score gap under which two disagreeing methods count
// as comparable confidence.
const conflictDelta = 0.10

// Thresholds are the band cut points for one scope (global or one vendor).
type Thresholds struct {
	AutoAccept      float64 `json:"auto_accept"`
	Review          float64 `json:"review"`
	RejectFloor     float64 `json:"reject_floor"`
	MinMargin       float64 `json:"min_margin"`
	DisagreementCap float64 `json:"disagreement_cap"`
	VendorBoost     float64 `json:"vendor_boost"`
}

// DefaultThresholds returns the uncalibrated global cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoAccept:      0.93,
		Review:          0.75,
		RejectFloor:     0.50,
		MinMargin:       0.05,
		DisagreementCap: 0.84,
		VendorBoost:     0.02,
	}
}

// ThresholdConfig is the calibrated configuration the engine bands with:
// global cut points plus per-vendor overrides for vendors with enough
// confirmed history.  Safe for concurrent use; the calibration service
// replaces it atomically.
type ThresholdConfig struct {
	mu      sync.RWMutex
	global  Thresholds
	vendors map[common.Vendor]Thresholds
}

// NewThresholdConfig builds a config around the given global cut points.
func NewThresholdConfig(global Thresholds) *ThresholdConfig {
	return &ThresholdConfig{global: global, vendors: make(map[common.Vendor]Thresholds)}
}

// For returns the thresholds for a vendor, falling back to global when the
// vendor has no calibrated override.
func (c *ThresholdConfig) For(vendor common.Vendor) Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.vendors[vendor]; ok && !vendor.IsGlobal() {
		return t
	}
	return c.global
}

// Global returns the global thresholds.
func (c *ThresholdConfig) Global() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global
}

// SetGlobal replaces the global thresholds.
func (c *ThresholdConfig) SetGlobal(t Thresholds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = t
}

// SetVendor installs a vendor-specific override.
func (c *ThresholdConfig) SetVendor(vendor common.Vendor, t Thresholds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vendors[vendor] = t
}

// VendorOverrides returns a copy of the per-vendor overrides.
func (c *ThresholdConfig) VendorOverrides() map[common.Vendor]Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[common.Vendor]Thresholds, len(c.vendors))
	for v, t := range c.vendors {
		out[v] = t
	}
	return out
}
