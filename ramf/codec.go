package ramf

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"math/big"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/relaynet-go/ramf/asn1x"
	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/ramferrors"
)

// Fields is the common RAMF field set (spec section 4.1) shared by
// every concrete message class.
type Fields struct {
	RecipientAddress string
	ID               string
	CreationDate     time.Time
	TTL              int
	Payload          []byte
}

// fieldSetASN1 is the implicitly-tagged SEQUENCE wire shape. Field
// order is load-bearing: changing it breaks wire compatibility.
type fieldSetASN1 struct {
	RecipientAddress []byte        `asn1:"tag:0"`
	ID               []byte        `asn1:"tag:1"`
	CreationDate     asn1.RawValue `asn1:"tag:2"`
	TTL              *big.Int      `asn1:"tag:3"`
	Payload          []byte        `asn1:"tag:4"`
}

func validateFieldBounds(f Fields) error {
	if len(f.RecipientAddress) > MaxRecipientAddressLength {
		return pkgerrors.Errorf("recipient address length %d exceeds maximum of %d characters", len(f.RecipientAddress), MaxRecipientAddressLength)
	}
	if len(f.ID) > MaxIDLength {
		return pkgerrors.Errorf("id length %d exceeds maximum of %d characters", len(f.ID), MaxIDLength)
	}
	if f.TTL < 0 || f.TTL > MaxTTL {
		return pkgerrors.Errorf("ttl %d is outside the allowed range [0, %d]", f.TTL, MaxTTL)
	}
	if len(f.Payload) > MaxPayloadLength {
		return pkgerrors.Errorf("payload length %d exceeds maximum of %d bytes", len(f.Payload), MaxPayloadLength)
	}
	return nil
}

// Serialize composes the field set, signs it as CMS SignedData with
// signerKey/signerCert (plus caChain in the certificate bag), and
// prepends the 10-byte format signature for typeOctet/versionOctet.
func Serialize(fields Fields, typeOctet, versionOctet byte, signerKey crypto.Signer, signerCert *cert.Certificate, caChain []*cert.Certificate, opts cms.SignatureOptions) ([]byte, error) {
	if err := validateFieldBounds(fields); err != nil {
		return nil, ramferrors.NewSyntax("failed to serialize RAMF message", err)
	}

	wire := fieldSetASN1{
		RecipientAddress: []byte(fields.RecipientAddress),
		ID:               []byte(fields.ID),
		CreationDate:     asn1x.RawImplicit(2, asn1x.ContextSpecific, asn1x.GeneralizedTimeBody(fields.CreationDate)),
		TTL:              big.NewInt(int64(fields.TTL)),
		Payload:          fields.Payload,
	}
	fieldSetDER, err := asn1.Marshal(wire)
	if err != nil {
		return nil, ramferrors.NewSyntax("failed to serialize RAMF field set", err)
	}

	signedDER, err := cms.Sign(fieldSetDER, signerKey, signerCert, caChain, opts)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to sign RAMF message", err)
	}

	message := make([]byte, 0, 10+len(signedDER))
	message = append(message, FormatSignaturePrefix...)
	message = append(message, typeOctet, versionOctet)
	message = append(message, signedDER...)

	if len(message) > MaxMessageLength {
		return nil, ramferrors.NewSyntax("failed to serialize RAMF message",
			pkgerrors.Errorf("message length %d exceeds maximum of %d bytes", len(message), MaxMessageLength))
	}
	return message, nil
}

// DeserializeResult is the outcome of a successful Deserialize: the
// recovered field set plus the certificates the CMS signature
// vouched for.
type DeserializeResult struct {
	Fields               Fields
	SignerCertificate    *cert.Certificate
	AttachedCertificates []*cert.Certificate
}

// Deserialize inverts Serialize: it checks the format signature and
// expected type/version, verifies the CMS SignedData, decodes the
// field set, and re-validates bounds.
func Deserialize(data []byte, expectedType, expectedVersion byte) (*DeserializeResult, error) {
	if len(data) > MaxMessageLength {
		return nil, ramferrors.NewSyntax("failed to deserialize RAMF message",
			pkgerrors.Errorf("message length %d exceeds maximum of %d bytes", len(data), MaxMessageLength))
	}
	if len(data) < 10 || string(data[:8]) != FormatSignaturePrefix {
		return nil, ramferrors.NewSyntax("failed to deserialize RAMF message", errors.New("missing or invalid format signature"))
	}

	actualType, actualVersion := data[8], data[9]
	if actualType != expectedType || actualVersion != expectedVersion {
		return nil, ramferrors.NewSyntax("failed to deserialize RAMF message",
			pkgerrors.Errorf("expected type/version 0x%02x/0x%02x, got 0x%02x/0x%02x", expectedType, expectedVersion, actualType, actualVersion))
	}

	signed, err := cms.Verify(data[10:], nil)
	if err != nil {
		return nil, ramferrors.NewValidation("failed to verify RAMF message signature", err)
	}

	var wire fieldSetASN1
	if _, err := asn1.Unmarshal(signed.Plaintext, &wire); err != nil {
		return nil, ramferrors.NewSyntax("failed to decode RAMF field set", err)
	}

	ttl, err := asn1x.NarrowBigInt(wire.TTL)
	if err != nil {
		return nil, ramferrors.NewSyntax("failed to decode RAMF field set", err)
	}
	creationDate, err := asn1x.ParseGeneralizedTimeBody(wire.CreationDate.Bytes)
	if err != nil {
		return nil, ramferrors.NewSyntax("failed to decode RAMF field set", err)
	}

	fields := Fields{
		RecipientAddress: string(wire.RecipientAddress),
		ID:               string(wire.ID),
		CreationDate:     creationDate,
		TTL:              int(ttl),
		Payload:          wire.Payload,
	}
	if err := validateFieldBounds(fields); err != nil {
		return nil, ramferrors.NewSyntax("failed to deserialize RAMF message", err)
	}

	return &DeserializeResult{
		Fields:               fields,
		SignerCertificate:    signed.SignerCertificate,
		AttachedCertificates: signed.AttachedCertificates,
	}, nil
}
