package services

import (
	"errors"
	"fmt"
)

// ErrEmptyCohort is returned by the statistics helpers when asked to
// aggregate zero values. Metric fields map it to JSON null.
var ErrEmptyCohort = errors.New("empty cohort")

// ErrListingsRolledBack stops a build from publishing when its listings phase
// was rolled back. The previously published generation stays in place.
var ErrListingsRolledBack = errors.New("listings phase rolled back")

// DataFormatError reports a malformed source cell. The cell is stored as NULL
// and the row is kept.
type DataFormatError struct {
	Column string
	Value  string
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("malformed %s value %q: %s", e.Column, e.Value, e.Reason)
}

// UnresolvedAmenityWarning records a free-text amenity that matched nothing
// in the canonical vocabulary. It is counted, never returned as a failure.
type UnresolvedAmenityWarning struct {
	Name        string
	Occurrences int
}

func (w UnresolvedAmenityWarning) String() string {
	return fmt.Sprintf("unresolved amenity %q (%d listings)", w.Name, w.Occurrences)
}

// ConfigError reports configuration that cannot drive a run
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
