package measure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inetanalyzer/agent/pkg/types"
)

// Document is a parsed measurement configuration.
type Document struct {
	// Count is the requested number of endpoints to sample, as configured.
	Count int
	// UploadEndpoints are the collector locations, in fallback order.
	UploadEndpoints []string
	// Endpoints holds the specs the probe can measure.
	Endpoints []EndpointSpec
	// Dropped holds parsed specs whose kinds are not supported.
	Dropped []EndpointSpec
}

// ParseDocument decodes a JSON configuration document. Any missing required
// field yields a *ConfigError.
func ParseDocument(data []byte) (Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Document{}, configErr("document", "empty")
	}

	var wire types.ConfigDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return Document{}, &ConfigError{Field: "document", Reason: "invalid json", Err: err}
	}
	return FromWire(wire)
}

// FromWire validates a decoded configuration document.
func FromWire(wire types.ConfigDocument) (Document, error) {
	if wire.Count == nil {
		return Document{}, configErr("n", "missing")
	}
	if wire.Uploads == nil {
		return Document{}, configErr("r", "missing")
	}
	if wire.Endpoints == nil {
		return Document{}, configErr("e", "missing")
	}

	doc := Document{Count: *wire.Count}
	for i, raw := range *wire.Uploads {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return Document{}, configErr(fmt.Sprintf("r[%d]", i), "empty upload endpoint")
		}
		doc.UploadEndpoints = append(doc.UploadEndpoints, raw)
	}
	if len(doc.UploadEndpoints) == 0 {
		return Document{}, configErr("r", "at least one upload endpoint is required")
	}

	for i, entry := range *wire.Endpoints {
		spec, err := specFromEntry(i, entry)
		if err != nil {
			return Document{}, err
		}
		if spec.Kinds.Supported() {
			doc.Endpoints = append(doc.Endpoints, spec)
		} else {
			doc.Dropped = append(doc.Dropped, spec)
		}
	}
	return doc, nil
}

func specFromEntry(i int, entry types.EndpointEntry) (EndpointSpec, error) {
	field := func(name string) string { return fmt.Sprintf("e[%d].%s", i, name) }

	if entry.Kinds == nil {
		return EndpointSpec{}, configErr(field("m"), "missing")
	}
	if entry.Weight == nil {
		return EndpointSpec{}, configErr(field("w"), "missing")
	}
	spec := EndpointSpec{
		Weight:       *entry.Weight,
		Kinds:        Kind(*entry.Kinds),
		ExperimentID: entry.Experiment,
		ObjectPath:   entry.Object,
	}
	if entry.Host != nil {
		spec.HostPattern = strings.TrimSpace(*entry.Host)
	}
	if !spec.Kinds.Supported() {
		return spec, nil
	}
	if spec.Weight <= 0 {
		return EndpointSpec{}, configErr(field("w"), fmt.Sprintf("weight must be positive, got %d", spec.Weight))
	}
	if spec.HostPattern == "" || spec.HostPattern == WildcardPrefix {
		return EndpointSpec{}, configErr(field("e"), "missing host pattern")
	}
	return spec, nil
}

// SampleCount returns the configured count clamped to the number of
// supported endpoints.
func (d Document) SampleCount() int {
	n := d.Count
	if n < 0 {
		n = 0
	}
	if n > len(d.Endpoints) {
		n = len(d.Endpoints)
	}
	return n
}
