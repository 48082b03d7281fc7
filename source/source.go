// Package source fetches profile snapshots from the platform through one
// of several interchangeable backends. Pick the backend with SOURCE_MODE;
// every backend returns the same ProfileSnapshot shape.
package source

import (
	"context"
	"errors"
	"fmt"

	"gramscout/config"
	"gramscout/httputil"
	"gramscout/models"
)

// Source fetches one profile snapshot per call. Implementations do not
// retry beyond their own protocol needs; callers decide what a failure
// means for their loop.
type Source interface {
	ID() string
	Fetch(ctx context.Context, username string) (*models.ProfileSnapshot, error)
}

// ErrNotFound reports that the platform has no profile for the handle.
var ErrNotFound = errors.New("profile not found")

// ConnectionError wraps transport and availability failures (timeouts,
// rate limits, login walls) so callers can tell them apart from a missing
// profile.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("connection error during %s", e.Op)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func connErr(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

func New(cfg *config.SourceConfig, clients *httputil.Clients) Source {
	switch cfg.Mode {
	case "api":
		return NewAPISource(cfg, clients)
	case "html":
		return NewHTMLSource(cfg, clients)
	case "browser":
		return NewBrowserSource(cfg)
	case "apify":
		return NewApifySource(cfg, clients)
	default:
		return NewAPISource(cfg, clients)
	}
}
