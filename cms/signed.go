// Package cms implements the two CMS wrappers spec section 4.2 and 4.3
// describe: SignedData (attached/detached signing, backed by
// github.com/digitorus/pkcs7) and EnvelopedData (sessionless key
// transport and session key agreement, hand-rolled over encoding/asn1
// since no pack dependency covers ECDH RecipientInfo — see DESIGN.md).
package cms

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"

	"github.com/digitorus/pkcs7"
	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/ramferrors"
)

// SignatureOptions configures CMS SignedData generation (spec section 4.2).
type SignatureOptions struct {
	// Hash is one of crypto.SHA256 (default), crypto.SHA384, crypto.SHA512.
	Hash crypto.Hash
	// Encapsulated includes the plaintext inside eContent when true
	// (the default); false produces a detached signature.
	Encapsulated bool
}

// DefaultSignatureOptions returns the spec-mandated defaults: SHA-256,
// encapsulated.
func DefaultSignatureOptions() SignatureOptions {
	return SignatureOptions{Hash: crypto.SHA256, Encapsulated: true}
}

var digestOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

// Sign produces a DER-encoded CMS ContentInfo wrapping a SignedData
// with exactly one SignerInfo, over data, using signerKey/signerCert,
// with caChain attached to the certificates bag alongside the signer
// certificate.
func Sign(data []byte, signerKey crypto.Signer, signerCert *cert.Certificate, caChain []*cert.Certificate, opts SignatureOptions) ([]byte, error) {
	if opts.Hash == 0 {
		opts = DefaultSignatureOptions()
	}
	oid, ok := digestOIDs[opts.Hash]
	if !ok {
		return nil, ramferrors.NewCMS("failed to sign CMS SignedData", errors.Errorf("unsupported signature hash %v", opts.Hash))
	}

	signedData, err := pkcs7.NewSignedData(data)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to initialize CMS SignedData", err)
	}
	signedData.SetDigestAlgorithm(oid)
	if !opts.Encapsulated {
		signedData.Detach()
	}

	if err := signedData.AddSigner(signerCert.X509(), signerKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, ramferrors.NewCMS("failed to add CMS signer", err)
	}
	for _, ca := range caChain {
		signedData.AddCertificate(ca.X509())
	}

	der, err := signedData.Finish()
	if err != nil {
		return nil, ramferrors.NewCMS("failed to finalize CMS SignedData", err)
	}
	return der, nil
}

// SignedDataResult is the outcome of a successful Verify.
type SignedDataResult struct {
	Plaintext            []byte
	SignerCertificate    *cert.Certificate
	AttachedCertificates []*cert.Certificate
}

// Verify checks a DER-encoded CMS SignedData, recovering the plaintext,
// the leaf signer certificate, and any attached CA certificates.
// externalPlaintext must be supplied for detached signatures and must
// be nil for encapsulated ones.
func Verify(der []byte, externalPlaintext []byte) (*SignedDataResult, error) {
	parsed, err := pkcs7.Parse(der)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to parse CMS SignedData", err)
	}

	if externalPlaintext != nil {
		parsed.Content = externalPlaintext
	}

	if err := parsed.Verify(); err != nil {
		return nil, ramferrors.NewCMS("CMS signature verification failed", err)
	}

	signer := parsed.GetOnlySigner()
	if signer == nil {
		return nil, ramferrors.NewCMS("CMS signature verification failed", errors.New("expected exactly one SignerInfo"))
	}

	var attached []*cert.Certificate
	for _, c := range parsed.Certificates {
		if certEqual(c, signer) {
			continue
		}
		attached = append(attached, cert.WrapX509(c))
	}

	return &SignedDataResult{
		Plaintext:            parsed.Content,
		SignerCertificate:    cert.WrapX509(signer),
		AttachedCertificates: attached,
	}, nil
}

func certEqual(a, b *x509.Certificate) bool {
	return string(a.Raw) == string(b.Raw)
}
