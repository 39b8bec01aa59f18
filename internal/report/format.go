package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Fixed upload payload values.
const (
	w3cValue      = "true"
	protocolValue = "https:"
)

// Metadata describes the run an uploaded report belongs to.
type Metadata struct {
	MonitorID  string
	RunID      string
	Tag        string
	ClientName string
	Version    string
}

// Format builds the upload query string. Keys appear in a fixed order and
// every value is query-escaped.
func Format(meta Metadata, items []Item) (string, error) {
	if meta.MonitorID == "" {
		return "", errors.New("monitor id is required")
	}
	if meta.RunID == "" {
		return "", errors.New("run id is required")
	}

	data := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		data = append(data, item.Formatted())
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal report data: %w", err)
	}

	pairs := [][2]string{
		{"MonitorId", meta.MonitorID},
		{"rid", meta.RunID},
		{"w3c", w3cValue},
		{"prot", protocolValue},
		{"v", meta.ClientName + ":" + meta.Version},
		{"tag", meta.Tag},
		{"DATA", string(encoded)},
	}
	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[1]))
	}
	return b.String(), nil
}
