package series

import (
	"fmt"
	"time"
)

// ConfigurationError reports invalid construction parameters. Constructors
// that return it never return a usable instance alongside.
type ConfigurationError struct {
	Component string // e.g. "SMA", "derived"
	Param     string // e.g. "period"
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Component, e.Param, e.Reason)
}

// Configf builds a *ConfigurationError with a formatted reason.
func Configf(component, param, format string, args ...any) error {
	return &ConfigurationError{Component: component, Param: param, Reason: fmt.Sprintf(format, args...)}
}

// OutOfOrderError is returned when a sample's timestamp precedes the
// series' tail (Append) or the element before the tail (Revise).
type OutOfOrderError struct {
	Series string
	Tail   time.Time // timestamp the sample had to be at or after
	Got    time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("series %q: sample at %s precedes %s",
		e.Series, e.Got.Format(time.RFC3339Nano), e.Tail.Format(time.RFC3339Nano))
}

// EmptySeriesError is returned by Revise on a series with no samples.
type EmptySeriesError struct {
	Series string
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("series %q: revise on empty series", e.Series)
}
