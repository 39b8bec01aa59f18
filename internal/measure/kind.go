package measure

import "strings"

// Kind is a bitmask of measurement kinds an endpoint supports.
type Kind int

const (
	KindHTTPS Kind = 1 << iota
	KindHTTP
	KindRTT
	KindThroughputHTTPS
	KindThroughputHTTP
	KindTraceroute4
	KindTraceroute6
	KindXHRHTTPS
	KindXHRHTTP
	KindJitter
	KindPacketLoss
	KindDNSLookup
)

// fetchKinds lists the kinds implemented by the fetch probe, in issue order.
var fetchKinds = []Kind{KindHTTP, KindHTTPS}

var kindNames = map[Kind]string{
	KindHTTPS:           "https",
	KindHTTP:            "http",
	KindRTT:             "rtt",
	KindThroughputHTTPS: "throughput_https",
	KindThroughputHTTP:  "throughput_http",
	KindTraceroute4:     "tracert4",
	KindTraceroute6:     "tracert6",
	KindXHRHTTPS:        "xhr_https",
	KindXHRHTTP:         "xhr_http",
	KindJitter:          "jitter",
	KindPacketLoss:      "packet_loss",
	KindDNSLookup:       "dns_lookup",
}

// Has reports whether every bit of other is set in k.
func (k Kind) Has(other Kind) bool {
	return other != 0 && k&other == other
}

// IsFetch reports whether the mask intersects {HTTP, HTTPS}.
func (k Kind) IsFetch() bool {
	return k.Has(KindHTTP) || k.Has(KindHTTPS)
}

// Supported reports whether the probe can measure at least one kind in the mask.
func (k Kind) Supported() bool {
	return k.IsFetch()
}

// FetchKinds splits the mask into the individual fetch kinds it carries.
func (k Kind) FetchKinds() []Kind {
	out := make([]Kind, 0, len(fetchKinds))
	for _, fk := range fetchKinds {
		if k.Has(fk) {
			out = append(out, fk)
		}
	}
	return out
}

// Scheme returns the URL scheme of a single fetch kind.
func (k Kind) Scheme() string {
	switch k {
	case KindHTTPS:
		return "https"
	case KindHTTP:
		return "http"
	default:
		return ""
	}
}

func (k Kind) String() string {
	if k == 0 {
		return "none"
	}
	if name, ok := kindNames[k]; ok {
		return name
	}
	parts := make([]string, 0, 4)
	for bit := KindHTTPS; bit <= KindDNSLookup; bit <<= 1 {
		if k.Has(bit) {
			parts = append(parts, kindNames[bit])
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
