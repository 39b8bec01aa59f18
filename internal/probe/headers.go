package probe

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"

	"github.com/inetanalyzer/agent/internal/report"
)

var diagnosticHeaders = []struct {
	key    string
	header string
}{
	{report.HeaderUserAddress, "X-UserHostAddress"},
	{report.HeaderEndPoint, "X-EndPoint"},
	{report.HeaderFrontEnd, "X-FrontEnd"},
	{report.HeaderMachineName, "X-MachineName"},
	{report.HeaderServerIP, "X-ServerIP"},
}

// captureHeaders collects the diagnostic response headers and, for TLS
// responses, the leaf certificate thumbprint and issuer.
func captureHeaders(resp *http.Response) map[string]string {
	out := make(map[string]string, len(diagnosticHeaders)+2)
	if resp == nil {
		return out
	}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		leaf := resp.TLS.PeerCertificates[0]
		sum := sha1.Sum(leaf.Raw)
		out[report.HeaderCertThumbprint] = hex.EncodeToString(sum[:])
		out[report.HeaderCertIssuer] = leaf.Issuer.String()
	}
	for _, h := range diagnosticHeaders {
		if v := resp.Header.Get(h.header); v != "" {
			out[h.key] = v
		}
	}
	return out
}
