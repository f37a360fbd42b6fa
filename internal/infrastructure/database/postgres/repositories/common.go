// Package repositories provides the PostgreSQL-backed implementations of the
// analyte domain repository interfaces.  Every query is parameterised and
// every public method accepts a context.Context for cancellation and timeout
// propagation.
package repositories

import (
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

// Logger is re-exported so constructors read uniformly across the package.
type Logger = logging.Logger

// textOrNull maps the empty string to SQL NULL.  Used for nullable foreign
// key columns where '' would violate the reference.
func textOrNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
