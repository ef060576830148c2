package store

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"time"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/ramferrors"
)

// SessionPublicKey is a peer's published session key.
type SessionPublicKey struct {
	KeyID                 string
	PublicKey             *ecdsa.PublicKey
	PublicKeyCreationTime time.Time
}

// SessionPublicKeyRecord is the stored shape of a SessionPublicKey.
type SessionPublicKeyRecord struct {
	KeyID                 string
	PublicKeyDER          []byte
	PublicKeyCreationTime time.Time
}

// PublicKeyStoreBackend is the persistence primitive a backend
// implements for peers' identity and session public keys, one of each
// per peer private address.
type PublicKeyStoreBackend interface {
	SaveIdentityKey(peerPrivateAddress string, keyDER []byte) error
	RetrieveIdentityKey(peerPrivateAddress string) ([]byte, error)
	SaveSessionKey(peerPrivateAddress string, record SessionPublicKeyRecord) error
	RetrieveSessionKey(peerPrivateAddress string) (record SessionPublicKeyRecord, ok bool, err error)
}

// PublicKeyStore is the public surface spec section 4.5.2 describes.
type PublicKeyStore struct {
	backend PublicKeyStoreBackend
}

// NewPublicKeyStore wraps backend with the public PublicKeyStore
// operations.
func NewPublicKeyStore(backend PublicKeyStoreBackend) *PublicKeyStore {
	return &PublicKeyStore{backend: backend}
}

// SaveIdentityKey stores peer's identity public key, overwriting any
// previously stored key for the same peer.
func (s *PublicKeyStore) SaveIdentityKey(peerPrivateAddress string, key *rsa.PublicKey) error {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	if err := s.backend.SaveIdentityKey(peerPrivateAddress, der); err != nil {
		return ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	return nil
}

// RetrieveIdentityKey returns peer's stored identity public key, or
// nil if none is stored.
func (s *PublicKeyStore) RetrieveIdentityKey(peerPrivateAddress string) (*rsa.PublicKey, error) {
	der, err := s.backend.RetrieveIdentityKey(peerPrivateAddress)
	if err != nil {
		return nil, ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	if der == nil {
		return nil, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ramferrors.NewKeyStore(peerPrivateAddress, errors.New("stored key is not an RSA public key"))
	}
	return rsaKey, nil
}

// SaveSessionKey stores peer's session public key. It is a no-op when
// sessionKey.PublicKeyCreationTime is earlier than the currently
// stored key's (monotonic latest-wins).
func (s *PublicKeyStore) SaveSessionKey(peerPrivateAddress string, sessionKey SessionPublicKey) error {
	existing, ok, err := s.backend.RetrieveSessionKey(peerPrivateAddress)
	if err != nil {
		return ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	if ok && sessionKey.PublicKeyCreationTime.Before(existing.PublicKeyCreationTime) {
		return nil
	}

	der, err := x509.MarshalPKIXPublicKey(sessionKey.PublicKey)
	if err != nil {
		return ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	record := SessionPublicKeyRecord{
		KeyID:                 sessionKey.KeyID,
		PublicKeyDER:          der,
		PublicKeyCreationTime: sessionKey.PublicKeyCreationTime,
	}
	if err := s.backend.SaveSessionKey(peerPrivateAddress, record); err != nil {
		return ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	return nil
}

// RetrieveSessionKey returns peer's currently stored session public
// key, or nil if none is stored.
func (s *PublicKeyStore) RetrieveSessionKey(peerPrivateAddress string) (*SessionPublicKey, error) {
	record, ok, err := s.backend.RetrieveSessionKey(peerPrivateAddress)
	if err != nil {
		return nil, ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	if !ok {
		return nil, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(record.PublicKeyDER)
	if err != nil {
		return nil, ramferrors.NewKeyStore(peerPrivateAddress, err)
	}
	ecdsaKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, ramferrors.NewKeyStore(peerPrivateAddress, errors.New("stored key is not an ECDSA public key"))
	}
	return &SessionPublicKey{
		KeyID:                 record.KeyID,
		PublicKey:             ecdsaKey,
		PublicKeyCreationTime: record.PublicKeyCreationTime,
	}, nil
}
