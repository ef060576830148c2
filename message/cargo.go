package message

import (
	"crypto"
	"time"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/ramf"
)

// Cargo is the RAMF message class batching encapsulated messages for
// store-and-forward relaying (type octet 0x43, version 0x00).
type Cargo struct {
	RecipientAddress         string
	ID                       string
	CreationDate             time.Time
	TTL                      int
	PayloadSerialized        []byte // a serialized CargoMessageSet
	SenderCertificate        *cert.Certificate
	SenderCACertificateChain []*cert.Certificate
}

// NewCargo builds a Cargo whose creation time is clamped to
// now-3h to tolerate relay clock drift, and whose TTL is clamped to
// the 180-day maximum.
func NewCargo(recipientAddress, id string, payload []byte, senderCert *cert.Certificate, ttl int) *Cargo {
	if ttl > ramf.MaxTTL {
		ttl = ramf.MaxTTL
	}
	creationDate := time.Now().UTC().Add(-ramf.CargoClockDriftToleranceSeconds * time.Second)
	return &Cargo{
		RecipientAddress:  recipientAddress,
		ID:                defaultID(id),
		CreationDate:      creationDate,
		TTL:               ttl,
		PayloadSerialized: payload,
		SenderCertificate: senderCert,
	}
}

// Serialize signs and frames the cargo as a RAMF message.
func (c *Cargo) Serialize(senderKey crypto.Signer, opts cms.SignatureOptions) ([]byte, error) {
	fields := ramf.Fields{
		RecipientAddress: c.RecipientAddress,
		ID:               c.ID,
		CreationDate:     c.CreationDate,
		TTL:              c.TTL,
		Payload:          c.PayloadSerialized,
	}
	return ramf.Serialize(fields, ramf.CargoType, ramf.CargoVersion, senderKey, c.SenderCertificate, c.SenderCACertificateChain, opts)
}

// DeserializeCargo verifies and decodes a RAMF Cargo message.
func DeserializeCargo(data []byte) (*Cargo, error) {
	result, err := ramf.Deserialize(data, ramf.CargoType, ramf.CargoVersion)
	if err != nil {
		return nil, err
	}
	return &Cargo{
		RecipientAddress:         result.Fields.RecipientAddress,
		ID:                       result.Fields.ID,
		CreationDate:             result.Fields.CreationDate,
		TTL:                      result.Fields.TTL,
		PayloadSerialized:        result.Fields.Payload,
		SenderCertificate:        result.SignerCertificate,
		SenderCACertificateChain: result.AttachedCertificates,
	}, nil
}
