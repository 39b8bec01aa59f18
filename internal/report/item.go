package report

import (
	"strings"

	"github.com/inetanalyzer/agent/pkg/types"
)

// Phase distinguishes a first-connection fetch from one reusing it.
type Phase string

const (
	Cold Phase = "Cold"
	Warm Phase = "Warm"
)

// Short header keys emitted in report items.
const (
	HeaderCertThumbprint = "Ctp"
	HeaderCertIssuer     = "Cib"
	HeaderUserAddress    = "Rip"
	HeaderEndPoint       = "Ep"
	HeaderFrontEnd       = "Fe"
	HeaderMachineName    = "Mn"
	HeaderServerIP       = "Sip"
)

// Item is a single measurement entry in an uploaded report.
type Item interface {
	// Formatted returns the JSON object written into the report DATA array.
	Formatted() map[string]any
}

// FetchItem is the report of one cold or warm fetch attempt.
type FetchItem struct {
	RequestID    string
	Result       Result
	Kind         int
	Phase        Phase
	Object       string
	ExperimentID string
	Headers      map[string]string
}

// NewFetchItem assembles an item, keeping only non-blank trimmed header values.
func NewFetchItem(requestID string, result Result, kind int, phase Phase, object, experimentID string, headers map[string]string) FetchItem {
	item := FetchItem{
		RequestID:    requestID,
		Result:       result,
		Kind:         kind,
		Phase:        phase,
		Object:       object,
		ExperimentID: experimentID,
		Headers:      make(map[string]string, len(headers)),
	}
	for k, v := range headers {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		item.Headers[k] = v
	}
	return item
}

func (f FetchItem) Formatted() map[string]any {
	out := make(map[string]any, 6+len(f.Headers))
	if f.RequestID != "" {
		out["RequestID"] = f.RequestID
	}
	if f.Phase != "" {
		out["Conn"] = string(f.Phase)
	}
	if f.Object != "" {
		out["Object"] = f.Object
	}
	if f.ExperimentID != "" {
		out["Ex"] = f.ExperimentID
	}
	out["Result"] = f.Result.Value()
	out["T"] = f.Kind
	for k, v := range f.Headers {
		out[k] = v
	}
	return out
}

// Record converts the item to its typed wire representation.
func (f FetchItem) Record() types.ReportRecord {
	return types.ReportRecord{
		RequestID: f.RequestID,
		Conn:      string(f.Phase),
		Object:    f.Object,
		Ex:        f.ExperimentID,
		Result:    f.Result.Value(),
		T:         f.Kind,
		Ctp:       f.Headers[HeaderCertThumbprint],
		Cib:       f.Headers[HeaderCertIssuer],
		Rip:       f.Headers[HeaderUserAddress],
		Ep:        f.Headers[HeaderEndPoint],
		Fe:        f.Headers[HeaderFrontEnd],
		Mn:        f.Headers[HeaderMachineName],
		Sip:       f.Headers[HeaderServerIP],
	}
}
