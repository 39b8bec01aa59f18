package measure

import (
	"errors"
	"fmt"
	"strings"
)

// WildcardPrefix marks a host pattern whose first label is replaced by a
// random one on every fetch.
const WildcardPrefix = "*."

// ErrZeroWeight is returned when a non-empty pool carries no weight to draw from.
var ErrZeroWeight = errors.New("endpoint pool has zero total weight")

// EndpointSpec describes one weighted measurement endpoint from the
// configuration document.
type EndpointSpec struct {
	Weight       int
	HostPattern  string
	Kinds        Kind
	ExperimentID string
	ObjectPath   string
}

// Wildcard reports whether the host pattern asks for a random subdomain.
func (s EndpointSpec) Wildcard() bool {
	return strings.HasPrefix(s.HostPattern, WildcardPrefix)
}

// ConfigError reports a malformed or missing configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("configuration field %q: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
