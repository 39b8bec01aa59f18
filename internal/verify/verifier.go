package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// DefaultSignatureSuffix is appended to a configuration URL to locate its detached signature.
const DefaultSignatureSuffix = ".minisig"

// ErrVerification is wrapped by every rejected signature.
var ErrVerification = errors.New("signature verification failed")

// MinisignVerifier checks detached Minisign signatures of configuration documents.
type MinisignVerifier struct {
	publicKey minisign.PublicKey
}

// NewMinisignVerifier parses the provided Minisign public key (including comment header).
func NewMinisignVerifier(pubKey string) (*MinisignVerifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	if !strings.Contains(pubKey, "\n") {
		pubKey = "untrusted comment: inetanalyzer configuration key\n" + pubKey
	}
	publicKey, err := minisign.DecodePublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &MinisignVerifier{publicKey: publicKey}, nil
}

// Verify validates signature over document.
func (v *MinisignVerifier) Verify(ctx context.Context, document, signature []byte) error {
	if v == nil {
		return errors.New("signature verifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sig, err := minisign.DecodeSignature(string(signature))
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrVerification, err)
	}
	ok, err := v.publicKey.Verify(document, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !ok {
		return ErrVerification
	}
	return nil
}

// VerifyFile reads a document and its detached signature from disk and validates them.
func (v *MinisignVerifier) VerifyFile(ctx context.Context, documentPath, signaturePath string) error {
	if strings.TrimSpace(documentPath) == "" {
		return errors.New("document path is required")
	}
	if strings.TrimSpace(signaturePath) == "" {
		return errors.New("signature path is required")
	}
	signature, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("read signature %q: %w", signaturePath, err)
	}
	document, err := os.ReadFile(documentPath)
	if err != nil {
		return fmt.Errorf("read document %q: %w", documentPath, err)
	}
	return v.Verify(ctx, document, signature)
}

// SignatureURL returns the location of the detached signature for a configuration URL.
func SignatureURL(configURL, suffix string) string {
	if suffix == "" {
		suffix = DefaultSignatureSuffix
	}
	if i := strings.IndexByte(configURL, '?'); i >= 0 {
		return configURL[:i] + suffix + configURL[i:]
	}
	return configURL + suffix
}
