package minify

import "fmt"

// LoadError reports that the engine library could not be located, loaded,
// or lacks a required symbol. It is not retried.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("minify: loading engine %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports that the engine rejected a configuration key
// or value. Whether earlier keys of the same call were applied is up to
// the engine.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "minify: configuration rejected: " + e.Message
}

// MinificationError reports that the engine rejected a media type or failed
// while minifying. No partial output is returned with it.
type MinificationError struct {
	MediaType string
	Message   string
}

func (e *MinificationError) Error() string {
	return fmt.Sprintf("minify: %s: %s", e.MediaType, e.Message)
}
