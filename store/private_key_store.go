// Package store implements the three key/certificate store contracts
// spec section 4.5 describes. Each contract splits into a small
// "backend" interface a persistence layer implements (the protected
// primitives) and a wrapping type that provides the public operations
// the rest of this module calls, layering validation and the
// taxonomy's error wrapping on top.
package store

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramferrors"
)

// IdentityKeyPair is the outcome of GenerateIdentityKeyPair.
type IdentityKeyPair struct {
	PrivateKey     *rsa.PrivateKey
	PublicKey      *rsa.PublicKey
	PrivateAddress string
}

// IdentityKeyGenOptions configures identity key generation. Zero
// values fall back to the spec defaults (2048-bit modulus, SHA-256).
type IdentityKeyGenOptions struct {
	ModulusBits int
	Hash        crypto.Hash
}

// SessionKeyRecord is a stored session private key, keyed externally
// by its hex key id.
type SessionKeyRecord struct {
	KeySerialized      []byte
	PrivateAddress     string
	PeerPrivateAddress *string // nil => unbound
}

// PrivateKeyStoreBackend is the persistence primitive a backend
// implements: plain storage and lookup, no validation.
type PrivateKeyStoreBackend interface {
	SaveIdentityKey(privateAddress string, keyDER []byte) error
	// RetrieveIdentityKey returns (nil, nil) if privateAddress is unknown.
	RetrieveIdentityKey(privateAddress string) ([]byte, error)
	SaveSessionKey(keyID string, record SessionKeyRecord) error
	// RetrieveSessionKey returns ok=false if keyID is unknown.
	RetrieveSessionKey(keyID string) (record SessionKeyRecord, ok bool, err error)
}

// PrivateKeyStore is the public surface spec section 4.5.1 describes,
// layered over a PrivateKeyStoreBackend.
type PrivateKeyStore struct {
	backend PrivateKeyStoreBackend
}

// NewPrivateKeyStore wraps backend with the public PrivateKeyStore
// operations.
func NewPrivateKeyStore(backend PrivateKeyStoreBackend) *PrivateKeyStore {
	return &PrivateKeyStore{backend: backend}
}

// GenerateIdentityKeyPair generates an RSA-PSS pair, derives its
// private address, and persists the private key under that address.
func (s *PrivateKeyStore) GenerateIdentityKeyPair(opts IdentityKeyGenOptions) (*IdentityKeyPair, error) {
	modulusBits := opts.ModulusBits
	if modulusBits == 0 {
		modulusBits = keys.MinRSAModulusBits
	}
	hash := opts.Hash
	if hash == 0 {
		hash = crypto.SHA256
	}

	privateKey, err := keys.GenerateIdentityKeyPair(modulusBits, hash)
	if err != nil {
		return nil, ramferrors.NewKeyStore("", err)
	}
	privateAddress, err := keys.PrivateAddress(&privateKey.PublicKey)
	if err != nil {
		return nil, ramferrors.NewKeyStore("", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, ramferrors.NewKeyStore(privateAddress, err)
	}
	if err := s.backend.SaveIdentityKey(privateAddress, der); err != nil {
		return nil, ramferrors.NewKeyStore(privateAddress, err)
	}

	return &IdentityKeyPair{
		PrivateKey:     privateKey,
		PublicKey:      &privateKey.PublicKey,
		PrivateAddress: privateAddress,
	}, nil
}

// RetrieveIdentityKey returns the identity private key stored under
// privateAddress, or nil if there is none.
func (s *PrivateKeyStore) RetrieveIdentityKey(privateAddress string) (*rsa.PrivateKey, error) {
	der, err := s.backend.RetrieveIdentityKey(privateAddress)
	if err != nil {
		return nil, ramferrors.NewKeyStore(privateAddress, err)
	}
	if der == nil {
		return nil, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ramferrors.NewKeyStore(privateAddress, err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ramferrors.NewKeyStore(privateAddress, errors.New("stored key is not an RSA private key"))
	}
	return rsaKey, nil
}

// SaveSessionKey persists privateKey under keyID. A nil
// peerPrivateAddress marks the key unbound (an initial key any peer
// may use once).
func (s *PrivateKeyStore) SaveSessionKey(privateKey *ecdsa.PrivateKey, keyID, privateAddress string, peerPrivateAddress *string) error {
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return ramferrors.NewKeyStore(privateAddress, err)
	}
	record := SessionKeyRecord{
		KeySerialized:      der,
		PrivateAddress:     privateAddress,
		PeerPrivateAddress: peerPrivateAddress,
	}
	if err := s.backend.SaveSessionKey(keyID, record); err != nil {
		return ramferrors.NewKeyStore(privateAddress, err)
	}
	return nil
}

// RetrieveUnboundSessionKey returns the session private key stored
// under keyID if it is owned by privateAddress and still unbound.
func (s *PrivateKeyStore) RetrieveUnboundSessionKey(keyID, privateAddress string) (*ecdsa.PrivateKey, error) {
	record, owned, err := s.ownedRecord(keyID, privateAddress)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ramferrors.NewUnknownKey(fmt.Sprintf("Key %s is owned by a different node", keyID))
	}
	if record.PeerPrivateAddress != nil {
		return nil, ramferrors.NewUnknownKey(fmt.Sprintf("Key %s is bound to %s", keyID, *record.PeerPrivateAddress))
	}
	return parseECDSAPrivateKey(keyID, record.KeySerialized)
}

// RetrieveSessionKey returns the session private key stored under
// keyID if it is owned by privateAddress and is either unbound or
// bound to peerPrivateAddress.
func (s *PrivateKeyStore) RetrieveSessionKey(keyID, privateAddress, peerPrivateAddress string) (*ecdsa.PrivateKey, error) {
	record, owned, err := s.ownedRecord(keyID, privateAddress)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ramferrors.NewUnknownKey(fmt.Sprintf("Key %s is owned by a different node", keyID))
	}
	if record.PeerPrivateAddress != nil && *record.PeerPrivateAddress != peerPrivateAddress {
		return nil, ramferrors.NewUnknownKey(fmt.Sprintf("Key %s is bound to %s, not %s", keyID, *record.PeerPrivateAddress, peerPrivateAddress))
	}
	return parseECDSAPrivateKey(keyID, record.KeySerialized)
}

// ownedRecord looks up keyID and reports whether it is owned by
// privateAddress. A record whose PrivateAddress differs is treated as
// missing, per the ownership invariant.
func (s *PrivateKeyStore) ownedRecord(keyID, privateAddress string) (SessionKeyRecord, bool, error) {
	record, ok, err := s.backend.RetrieveSessionKey(keyID)
	if err != nil {
		return SessionKeyRecord{}, false, ramferrors.NewKeyStore(privateAddress, err)
	}
	if !ok || record.PrivateAddress != privateAddress {
		return SessionKeyRecord{}, false, nil
	}
	return record, true, nil
}

func parseECDSAPrivateKey(keyID string, der []byte) (*ecdsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ramferrors.NewKeyStore(keyID, err)
	}
	ecdsaKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, ramferrors.NewKeyStore(keyID, errors.New("stored key is not an ECDSA private key"))
	}
	return ecdsaKey, nil
}
