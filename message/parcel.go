// Package message implements the two concrete RAMF message classes
// spec section 4.6 defines (Parcel, Cargo), the CargoMessageSet batch
// envelope, and the supplemented PublicNodeConnectionParams structure.
package message

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/ramf"
	"github.com/relaynet-go/ramf/ramferrors"
)

// Parcel is the RAMF message class carrying a single encrypted SDU
// end-to-end (type octet 0x50, version 0x00).
type Parcel struct {
	RecipientAddress         string
	ID                       string
	CreationDate             time.Time
	TTL                      int
	PayloadSerialized        []byte // CMS EnvelopedData over the SDU
	SenderCertificate        *cert.Certificate
	SenderCACertificateChain []*cert.Certificate
}

func defaultID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// NewSessionlessParcel builds a Parcel whose payload is encrypted to
// recipientCert's RSA identity public key.
func NewSessionlessParcel(recipientAddress, id string, sdu []byte, recipientCert, senderCert *cert.Certificate, ttl int, keySize cms.AESKeySize) (*Parcel, error) {
	if len(sdu) > ramf.MaxSDUPlaintextLength {
		return nil, ramferrors.NewSyntax("failed to build parcel",
			errors.Errorf("SDU length %d exceeds maximum of %d bytes", len(sdu), ramf.MaxSDUPlaintextLength))
	}
	envelope, err := cms.EncryptSessionless(sdu, recipientCert, keySize)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to encrypt parcel payload", err)
	}
	return &Parcel{
		RecipientAddress:  recipientAddress,
		ID:                defaultID(id),
		CreationDate:      time.Now().UTC(),
		TTL:               ttl,
		PayloadSerialized: envelope,
		SenderCertificate: senderCert,
	}, nil
}

// NewSessionParcel builds a Parcel whose payload is encrypted to a
// recipient session public key via ECDH. It returns the originator
// ephemeral key id alongside the parcel; the envelope also carries
// that id, which the recipient reads back with GetOriginatorKey.
func NewSessionParcel(recipientAddress, id string, sdu []byte, recipientSessionKeyID string, recipientSessionPublicKey *ecdsa.PublicKey, curve elliptic.Curve, senderCert *cert.Certificate, ttl int, keySize cms.AESKeySize) (*Parcel, string, error) {
	if len(sdu) > ramf.MaxSDUPlaintextLength {
		return nil, "", ramferrors.NewSyntax("failed to build parcel",
			errors.Errorf("SDU length %d exceeds maximum of %d bytes", len(sdu), ramf.MaxSDUPlaintextLength))
	}
	envelope, originatorKeyID, err := cms.EncryptSession(sdu, recipientSessionKeyID, recipientSessionPublicKey, curve, keySize)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to encrypt parcel payload", err)
	}
	parcel := &Parcel{
		RecipientAddress:  recipientAddress,
		ID:                defaultID(id),
		CreationDate:      time.Now().UTC(),
		TTL:               ttl,
		PayloadSerialized: envelope,
		SenderCertificate: senderCert,
	}
	return parcel, originatorKeyID, nil
}

// Serialize signs and frames the parcel as a RAMF message.
func (p *Parcel) Serialize(senderKey crypto.Signer, opts cms.SignatureOptions) ([]byte, error) {
	fields := ramf.Fields{
		RecipientAddress: p.RecipientAddress,
		ID:               p.ID,
		CreationDate:     p.CreationDate,
		TTL:              p.TTL,
		Payload:          p.PayloadSerialized,
	}
	return ramf.Serialize(fields, ramf.ParcelType, ramf.ParcelVersion, senderKey, p.SenderCertificate, p.SenderCACertificateChain, opts)
}

// DeserializeParcel verifies and decodes a RAMF Parcel message.
func DeserializeParcel(data []byte) (*Parcel, error) {
	result, err := ramf.Deserialize(data, ramf.ParcelType, ramf.ParcelVersion)
	if err != nil {
		return nil, err
	}
	return &Parcel{
		RecipientAddress:         result.Fields.RecipientAddress,
		ID:                       result.Fields.ID,
		CreationDate:             result.Fields.CreationDate,
		TTL:                      result.Fields.TTL,
		PayloadSerialized:        result.Fields.Payload,
		SenderCertificate:        result.SignerCertificate,
		SenderCACertificateChain: result.AttachedCertificates,
	}, nil
}

// DecryptSessionless recovers the plaintext SDU using the recipient's
// RSA identity private key.
func (p *Parcel) DecryptSessionless(identityPrivateKey *rsa.PrivateKey) ([]byte, error) {
	envelope, err := cms.ParseEnvelope(p.PayloadSerialized)
	if err != nil {
		return nil, err
	}
	return envelope.DecryptSessionless(identityPrivateKey)
}

// DecryptSession recovers the plaintext SDU given the recipient's
// session private key.
func (p *Parcel) DecryptSession(sessionPrivateKey *ecdsa.PrivateKey) ([]byte, error) {
	envelope, err := cms.ParseEnvelope(p.PayloadSerialized)
	if err != nil {
		return nil, err
	}
	return envelope.DecryptSession(sessionPrivateKey)
}
