package message

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramferrors"
)

// PublicNodeConnectionParams is the supplemented structure a node
// publishes so peers can address it and encrypt to its current
// session key (spec section 6). IdentityKey is the node's RSA-PSS
// identity public key; SessionPublicKey is its current published
// ECDH session key.
type PublicNodeConnectionParams struct {
	PublicAddress    string
	IdentityKey      *rsa.PublicKey
	SessionKeyID     string
	SessionPublicKey *ecdsa.PublicKey
}

type publicNodeConnectionParamsASN1 struct {
	PublicAddress []byte `asn1:"tag:0"`
	IdentityKey   []byte `asn1:"tag:1"`
	SessionKey    sessionKeyASN1
}

type sessionKeyASN1 struct {
	KeyID     []byte `asn1:"tag:0"`
	PublicKey []byte `asn1:"tag:1"`
}

// Serialize DER-encodes the connection params per the SEQUENCE {
// publicAddress [0] VisibleString, identityKey [1] OCTET STRING,
// sessionKey SEQUENCE { keyId [0] OCTET STRING, publicKey [1] OCTET
// STRING } }
// wire shape.
func (p *PublicNodeConnectionParams) Serialize() ([]byte, error) {
	identitySPKI, err := keys.SPKIDER(p.IdentityKey)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to serialize connection params", err)
	}
	sessionSPKI, err := keys.SPKIDER(p.SessionPublicKey)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to serialize connection params", err)
	}
	keyIDBytes, err := keys.KeyIDToBytes(p.SessionKeyID)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to serialize connection params", err)
	}

	wire := publicNodeConnectionParamsASN1{
		PublicAddress: []byte(p.PublicAddress),
		IdentityKey:   identitySPKI,
		SessionKey: sessionKeyASN1{
			KeyID:     keyIDBytes[:],
			PublicKey: sessionSPKI,
		},
	}
	der, err := asn1.Marshal(wire)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to serialize connection params", err)
	}
	return der, nil
}

// DeserializePublicNodeConnectionParams parses a DER-encoded
// PublicNodeConnectionParams.
func DeserializePublicNodeConnectionParams(der []byte) (*PublicNodeConnectionParams, error) {
	var wire publicNodeConnectionParamsASN1
	if _, err := asn1.Unmarshal(der, &wire); err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to deserialize connection params", err)
	}

	identityKey, err := x509.ParsePKIXPublicKey(wire.IdentityKey)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to deserialize connection params identity key", err)
	}
	identityRSA, ok := identityKey.(*rsa.PublicKey)
	if !ok {
		return nil, ramferrors.NewInvalidMessage("failed to deserialize connection params",
			errors.New("identity key is not an RSA public key"))
	}

	sessionKey, err := x509.ParsePKIXPublicKey(wire.SessionKey.PublicKey)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to deserialize connection params session key", err)
	}
	sessionECDSA, ok := sessionKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, ramferrors.NewInvalidMessage("failed to deserialize connection params",
			errors.New("session key is not an EC public key"))
	}

	keyID, err := keys.KeyIDFromBytes(wire.SessionKey.KeyID)
	if err != nil {
		return nil, ramferrors.NewInvalidMessage("failed to deserialize connection params", err)
	}

	return &PublicNodeConnectionParams{
		PublicAddress:    string(wire.PublicAddress),
		IdentityKey:      identityRSA,
		SessionKeyID:     keyID,
		SessionPublicKey: sessionECDSA,
	}, nil
}
