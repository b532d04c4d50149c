package geofence

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch indicates the provider request could not be completed.
	ErrFetch = errors.New("fetch geofence")
	// ErrDecode indicates the provider returned an unparseable body.
	ErrDecode = errors.New("decode geofence")
	// ErrStatus indicates a non-200 provider response.
	ErrStatus = errors.New("geofence provider status")
)

// Wrap annotates cause with one of the package sentinels.
func Wrap(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}
