package cert

import (
	"encoding/asn1"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/ramferrors"
)

// CertificationPath is a leaf certificate plus an ordered list of
// authority certificates from issuer outward (spec section 3).
type CertificationPath struct {
	Leaf                   *Certificate
	CertificateAuthorities []*Certificate
}

// certificationPathASN1 is the wire shape from spec section 6:
// SEQUENCE { leaf [0] OCTET STRING, authorities [1] SEQUENCE OF OCTET
// STRING }.
type certificationPathASN1 struct {
	Leaf        []byte   `asn1:"tag:0"`
	Authorities [][]byte `asn1:"tag:1"`
}

// Serialize DER-encodes the path as an implicitly-tagged SEQUENCE of
// DER-encoded certificates.
func (p *CertificationPath) Serialize() ([]byte, error) {
	wire := certificationPathASN1{Leaf: p.Leaf.Serialize()}
	for _, authority := range p.CertificateAuthorities {
		wire.Authorities = append(wire.Authorities, authority.Serialize())
	}
	der, err := asn1.Marshal(wire)
	if err != nil {
		return nil, ramferrors.NewSyntax("failed to serialize certification path", err)
	}
	return der, nil
}

// DeserializeCertificationPath parses a DER-encoded certification path.
func DeserializeCertificationPath(der []byte) (*CertificationPath, error) {
	var wire certificationPathASN1
	if _, err := asn1.Unmarshal(der, &wire); err != nil {
		return nil, ramferrors.NewSyntax("failed to deserialize certification path", err)
	}
	leaf, err := Deserialize(wire.Leaf)
	if err != nil {
		return nil, ramferrors.NewSyntax("failed to deserialize certification path leaf", err)
	}
	path := &CertificationPath{Leaf: leaf}
	for _, authorityDER := range wire.Authorities {
		authority, err := Deserialize(authorityDER)
		if err != nil {
			return nil, ramferrors.NewSyntax("failed to deserialize certification path authority", err)
		}
		path.CertificateAuthorities = append(path.CertificateAuthorities, authority)
	}
	return path, nil
}

// GetCertificationPath builds the ordered leaf-to-root path from c
// through intermediates to one of trusted, per spec section 4.4:
//
//  1. Intermediates that are themselves issuers of a trusted certificate
//     are dropped first — a defensive filter against the well-known
//     "chain-finder degeneracy" where such an intermediate causes a
//     validator to loop or pick an unintended path. This module's
//     Go-native validator doesn't suffer that particular bug, but the
//     filter is preserved for wire/behavioral compatibility. It only
//     narrows the candidate set, so a path whose only route runs through
//     a dropped intermediate is not found.
//  2. The chain is walked from c upward, resolving each certificate's
//     issuer first among the candidate pool (intermediates ∪ trusted),
//     falling back to treating the certificate itself as a root when it
//     is directly present in the trusted set (the case where a trusted
//     certificate is also handed in as an "intermediate").
func (c *Certificate) GetCertificationPath(intermediates, trusted []*Certificate) (*CertificationPath, error) {
	filteredIntermediates := dropIntermediatesIssuingTrusted(intermediates, trusted)

	candidates := make([]*Certificate, 0, len(filteredIntermediates)+1)
	candidates = append(candidates, filteredIntermediates...)
	candidates = append(candidates, c)

	path := &CertificationPath{Leaf: c}
	current := c
	visited := map[string]bool{}

	for {
		currentKey := string(current.Serialize())
		if visited[currentKey] {
			return nil, ramferrors.NewCertificate("failed to build certification path",
				errors.New("certificate chain contains a cycle"))
		}
		visited[currentKey] = true

		issuer := findIssuer(current, candidates, trusted)
		if issuer == nil {
			return nil, ramferrors.NewCertificate("failed to build certification path",
				errors.Errorf("no issuer found for certificate with subject %q", current.X509().Subject))
		}

		if err := current.X509().CheckSignatureFrom(issuer.X509()); err != nil {
			return nil, ramferrors.NewCertificate("failed to build certification path", err)
		}

		path.CertificateAuthorities = append(path.CertificateAuthorities, issuer)

		if isTrusted(issuer, trusted) {
			return path, nil
		}
		if issuer == current {
			// Self-signed and not in the trusted set: dead end.
			return nil, ramferrors.NewCertificate("failed to build certification path",
				errors.New("chain terminates in an untrusted self-signed certificate"))
		}
		current = issuer
	}
}

// dropIntermediatesIssuingTrusted removes any intermediate whose
// SubjectKeyId matches a trusted certificate's AuthorityKeyId, i.e. the
// intermediate is itself the issuer of something already trusted.
func dropIntermediatesIssuingTrusted(intermediates, trusted []*Certificate) []*Certificate {
	trustedIssuers := map[string]bool{}
	for _, t := range trusted {
		if len(t.X509().AuthorityKeyId) > 0 {
			trustedIssuers[string(t.X509().AuthorityKeyId)] = true
		}
	}
	var kept []*Certificate
	for _, intermediate := range intermediates {
		if trustedIssuers[string(intermediate.X509().SubjectKeyId)] {
			continue
		}
		kept = append(kept, intermediate)
	}
	return kept
}

// findIssuer resolves cert's issuer: first the default candidate-pool
// resolver (matching AuthorityKeyId against each candidate's
// SubjectKeyId and requiring CA-ness), then — if nothing matched and
// cert itself is a trusted certificate — cert is accepted as its own
// issuer (self-signed root already trusted).
func findIssuer(certificate *Certificate, candidates, trusted []*Certificate) *Certificate {
	for _, candidate := range candidates {
		if candidate == certificate {
			continue
		}
		if !candidate.X509().IsCA {
			continue
		}
		if sameKeyID(candidate.X509().SubjectKeyId, certificate.X509().AuthorityKeyId) {
			return candidate
		}
	}
	for _, t := range trusted {
		if sameKeyID(t.X509().SubjectKeyId, certificate.X509().AuthorityKeyId) {
			return t
		}
	}
	if isTrusted(certificate, trusted) {
		return certificate
	}
	return nil
}

func isTrusted(certificate *Certificate, trusted []*Certificate) bool {
	for _, t := range trusted {
		if string(t.Serialize()) == string(certificate.Serialize()) {
			return true
		}
	}
	return false
}

func sameKeyID(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
