// Package pki provides typed certificate-issuance helpers layered over
// cert.Issue for the three node roles this PKI recognizes (gateway,
// endpoint, and a gateway's own delivery authorization), plus CDA
// renewal and a path-validation convenience wrapper.
package pki

import (
	"crypto"
	"time"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/ramf"
)

// IssueGatewayCertificate issues a self-signed or subordinate gateway
// certificate. Gateways are certificate authorities with a path length
// of 1, able to issue endpoint certificates and their own CDAs.
func IssueGatewayCertificate(issuerPrivateKey crypto.Signer, subjectPublicKey crypto.PublicKey, commonName string, issuerCertificate *cert.Certificate, validFor time.Duration) (*cert.Certificate, error) {
	now := time.Now().UTC()
	return cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  issuerPrivateKey,
		SubjectPublicKey:  subjectPublicKey,
		CommonName:        commonName,
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(validFor),
		IssuerCertificate: issuerCertificate,
		IsCA:              true,
		PathLenConstraint: 1,
	})
}

// IssueEndpointCertificate issues an end-entity certificate under a
// gateway's certificate authority.
func IssueEndpointCertificate(issuerPrivateKey crypto.Signer, issuerCertificate *cert.Certificate, subjectPublicKey crypto.PublicKey, commonName string, validFor time.Duration) (*cert.Certificate, error) {
	now := time.Now().UTC()
	return cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  issuerPrivateKey,
		SubjectPublicKey:  subjectPublicKey,
		CommonName:        commonName,
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(validFor),
		IssuerCertificate: issuerCertificate,
		IsCA:              false,
	})
}

// IssueDeliveryAuthorization issues a Channel Delivery Authorization: a
// short-lived certificate a gateway issues to itself so it can
// authenticate cargo delivery on a channel.
func IssueDeliveryAuthorization(gatewayPrivateKey crypto.Signer, gatewayCertificate *cert.Certificate, validFor time.Duration) (*cert.Certificate, error) {
	now := time.Now().UTC()
	return cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  gatewayPrivateKey,
		SubjectPublicKey:  gatewayCertificate.X509().PublicKey,
		CommonName:        gatewayCertificate.X509().Subject.CommonName,
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(validFor),
		IssuerCertificate: gatewayCertificate,
		IsCA:              false,
	})
}

// RenewCDAIfNeeded issues a fresh CDA when current's remaining validity
// has dropped below the 90-day renewal threshold, with the renewed
// certificate valid for 180 days. If renewal isn't yet needed, current
// is returned unchanged.
func RenewCDAIfNeeded(current *cert.Certificate, gatewayPrivateKey crypto.Signer, gatewayCertificate *cert.Certificate) (*cert.Certificate, error) {
	remaining := time.Until(current.X509().NotAfter)
	if remaining > ramf.CDARenewalThresholdSeconds*time.Second {
		return current, nil
	}
	return IssueDeliveryAuthorization(gatewayPrivateKey, gatewayCertificate, ramf.CDARenewedValiditySeconds*time.Second)
}

// ValidatePath validates leaf and builds its certification path
// through intermediates up to one of trusted.
func ValidatePath(leaf *cert.Certificate, intermediates, trusted []*cert.Certificate) (*cert.CertificationPath, error) {
	if err := leaf.Validate(); err != nil {
		return nil, err
	}
	return leaf.GetCertificationPath(intermediates, trusted)
}
