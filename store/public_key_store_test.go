package store

import (
	"crypto"
	"crypto/elliptic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/keys"
)

func newPublicKeyStore() *PublicKeyStore {
	return NewPublicKeyStore(NewInMemoryPublicKeyStoreBackend())
}

func TestPublicKeyStore_IdentityKeyRoundTrip(t *testing.T) {
	s := newPublicKeyStore()
	identityKey, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)

	require.NoError(t, s.SaveIdentityKey("peer-a", &identityKey.PublicKey))

	retrieved, err := s.RetrieveIdentityKey("peer-a")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.True(t, identityKey.PublicKey.Equal(retrieved))
}

func TestPublicKeyStore_IdentityKey_UnknownReturnsNil(t *testing.T) {
	s := newPublicKeyStore()
	retrieved, err := s.RetrieveIdentityKey("unknown-peer")
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestPublicKeyStore_SessionKey_LatestWins(t *testing.T) {
	s := newPublicKeyStore()
	older, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)
	newer, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.SaveSessionKey("peer-a", SessionPublicKey{
		KeyID:                 "older",
		PublicKey:             &older.PublicKey,
		PublicKeyCreationTime: now,
	}))
	require.NoError(t, s.SaveSessionKey("peer-a", SessionPublicKey{
		KeyID:                 "newer",
		PublicKey:             &newer.PublicKey,
		PublicKeyCreationTime: now.Add(time.Hour),
	}))

	current, err := s.RetrieveSessionKey("peer-a")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "newer", current.KeyID)
}

func TestPublicKeyStore_SessionKey_OlderPublicationIsIgnored(t *testing.T) {
	s := newPublicKeyStore()
	older, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)
	newer, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.SaveSessionKey("peer-a", SessionPublicKey{
		KeyID:                 "newer",
		PublicKey:             &newer.PublicKey,
		PublicKeyCreationTime: now,
	}))
	require.NoError(t, s.SaveSessionKey("peer-a", SessionPublicKey{
		KeyID:                 "older",
		PublicKey:             &older.PublicKey,
		PublicKeyCreationTime: now.Add(-time.Hour),
	}))

	current, err := s.RetrieveSessionKey("peer-a")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "newer", current.KeyID)
}

func TestPublicKeyStore_SessionKey_UnknownPeerReturnsNil(t *testing.T) {
	s := newPublicKeyStore()
	current, err := s.RetrieveSessionKey("unknown-peer")
	require.NoError(t, err)
	assert.Nil(t, current)
}
