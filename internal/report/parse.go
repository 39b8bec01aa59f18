package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/inetanalyzer/agent/pkg/types"
)

// ErrMissingData is returned when an upload query carries no DATA field.
var ErrMissingData = errors.New("upload query has no DATA field")

// ParseUpload decodes an upload query string produced by Format.
func ParseUpload(query string) (types.UploadEnvelope, error) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return types.UploadEnvelope{}, fmt.Errorf("parse upload query: %w", err)
	}
	return ParseUploadValues(values)
}

// ParseUploadValues decodes already parsed upload query values.
func ParseUploadValues(values url.Values) (types.UploadEnvelope, error) {
	if _, ok := values["DATA"]; !ok {
		return types.UploadEnvelope{}, ErrMissingData
	}
	env := types.UploadEnvelope{
		MonitorID: values.Get("MonitorId"),
		RunID:     values.Get("rid"),
		W3C:       values.Get("w3c") == w3cValue,
		Protocol:  values.Get("prot"),
		Version:   values.Get("v"),
		Tag:       values.Get("tag"),
	}
	if err := json.Unmarshal([]byte(values.Get("DATA")), &env.Data); err != nil {
		return types.UploadEnvelope{}, fmt.Errorf("decode report data: %w", err)
	}
	return env, nil
}
