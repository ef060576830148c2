// Package cert wraps crypto/x509 certificates with the Awala/RAMF PKI
// rules: self-signed identity roots, bounded path length, SHA-256 key
// identifiers, private-address derivation, and certification-path
// validation (spec section 4.4).
package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramferrors"
)

// PathLenConstraintMax is the upper bound spec section 3 places on a
// CA certificate's pathLenConstraint.
const PathLenConstraintMax = 2

// Certificate wraps an X.509 v3 certificate. The zero value is not
// valid; build one with Issue or Deserialize.
type Certificate struct {
	x509Cert *x509.Certificate

	// privateAddressCache memoizes CalculateSubjectPrivateAddress, a
	// pure function of the immutable public key. Written at most once,
	// so a plain atomic.Pointer is enough interior mutability — no lock
	// needed since every writer computes the same value.
	privateAddressCache atomic.Pointer[string]
}

// WrapX509 adapts an already-parsed *x509.Certificate.
func WrapX509(c *x509.Certificate) *Certificate {
	return &Certificate{x509Cert: c}
}

// X509 exposes the underlying standard-library certificate for callers
// that need to interoperate with crypto/tls or other x509 consumers.
func (c *Certificate) X509() *x509.Certificate { return c.x509Cert }

// Serialize returns the DER encoding of the certificate.
func (c *Certificate) Serialize() []byte {
	return c.x509Cert.Raw
}

// Deserialize parses a DER-encoded X.509 certificate.
func Deserialize(der []byte) (*Certificate, error) {
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, ramferrors.NewCertificate("failed to parse certificate", err)
	}
	return WrapX509(parsed), nil
}

// Validate enforces X.509 v3 and notBefore <= now <= notAfter, using
// the system clock.
func (c *Certificate) Validate() error {
	return c.ValidateAt(time.Now().UTC())
}

// ValidateAt enforces X.509 v3 and notBefore <= at <= notAfter against
// a caller-supplied instant, for deterministic tests.
func (c *Certificate) ValidateAt(at time.Time) error {
	if c.x509Cert.Version != 3 {
		return ramferrors.NewCertificate("certificate validation failed",
			errors.Errorf("expected X.509 v3, got v%d", c.x509Cert.Version))
	}
	if at.Before(c.x509Cert.NotBefore) {
		return ramferrors.NewCertificate("certificate validation failed",
			errors.Errorf("certificate is not valid until %s", c.x509Cert.NotBefore))
	}
	if at.After(c.x509Cert.NotAfter) {
		return ramferrors.NewCertificate("certificate validation failed",
			errors.Errorf("certificate expired at %s", c.x509Cert.NotAfter))
	}
	return nil
}

// CalculateSubjectPrivateAddress derives "0" + hex(sha256(spki)) from
// the certificate's subject public key, memoizing the result.
func (c *Certificate) CalculateSubjectPrivateAddress() (string, error) {
	if cached := c.privateAddressCache.Load(); cached != nil {
		return *cached, nil
	}
	addr, err := keys.PrivateAddress(c.x509Cert.PublicKey)
	if err != nil {
		return "", ramferrors.NewCertificate("failed to calculate subject private address", err)
	}
	c.privateAddressCache.Store(&addr)
	return addr, nil
}

// GetIssuerPrivateAddress derives "0" + hex(AuthorityKeyIdentifier) if
// the certificate carries that extension, or "" if it does not.
// Certificates from Issue always carry it; for a self-signed one it is
// the certificate's own key id, so the result equals its subject
// private address.
func (c *Certificate) GetIssuerPrivateAddress() string {
	if len(c.x509Cert.AuthorityKeyId) == 0 {
		return ""
	}
	return "0" + hex.EncodeToString(c.x509Cert.AuthorityKeyId)
}

// IsCA reports whether the certificate's BasicConstraints marks it as a
// certificate authority.
func (c *Certificate) IsCA() bool { return c.x509Cert.IsCA }

// computeSKI computes the RFC 5280-shaped key identifier this PKI uses:
// the full SHA-256 digest of the public key's SPKI DER (spec section 3
// specifies SHA-256, not the RFC 5280 method-1 SHA-1 truncation most
// CAs default to).
func computeSKI(spkiDER []byte) []byte {
	digest := sha256.Sum256(spkiDER)
	return digest[:]
}
