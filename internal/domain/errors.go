package domain

import "fmt"

// DataFormatError means a structured input is unusable as a whole (missing
// required columns, unreadable header). Fatal before processing starts.
type DataFormatError struct {
	Path   string
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("data format error in %s: %s", e.Path, e.Reason)
}

// ConfigurationError means the run cannot start as configured (empty ground
// truth, speed factor <= 0, bad timezone). Fatal before replay.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// SinkWriteError means the emission target rejected a record mid-run. Fatal:
// continuing would silently lose events the detector never saw.
type SinkWriteError struct {
	Err error
}

func (e *SinkWriteError) Error() string {
	return "sink write failed: " + e.Err.Error()
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}
