package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrIncompleteKeyPair is returned when only one of the certificate and key paths is set.
var ErrIncompleteKeyPair = errors.New("client certificate and key must be provided together")

// LoadUplinkTLSConfig builds the TLS configuration used to talk to the
// configuration and collection service. caPath adds a private CA bundle to
// the system roots; certPath and keyPath enable a client certificate. It
// returns nil when nothing is configured.
func LoadUplinkTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if (certPath == "") != (keyPath == "") {
		return nil, ErrIncompleteKeyPair
	}
	if caPath == "" && certPath == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if certPath != "" {
		certificate, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{certificate}
	}

	if caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		roots, err := x509.SystemCertPool()
		if err != nil || roots == nil {
			roots = x509.NewCertPool()
		}
		if !roots.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("invalid CA bundle %q", caPath)
		}
		tlsConfig.RootCAs = roots
	}
	return tlsConfig, nil
}

// NewHTTPClient returns an HTTP client using tlsConfig, or nil when tlsConfig is nil.
func NewHTTPClient(tlsConfig *tls.Config, timeout time.Duration) *http.Client {
	if tlsConfig == nil {
		return nil
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport, Timeout: timeout}
}
