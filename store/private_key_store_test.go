package store

import (
	"crypto/elliptic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/keys"
)

func newPrivateKeyStore() *PrivateKeyStore {
	return NewPrivateKeyStore(NewInMemoryPrivateKeyStoreBackend())
}

func TestPrivateKeyStore_GenerateAndRetrieveIdentityKeyPair(t *testing.T) {
	s := newPrivateKeyStore()
	pair, err := s.GenerateIdentityKeyPair(IdentityKeyGenOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, pair.PrivateAddress)

	retrieved, err := s.RetrieveIdentityKey(pair.PrivateAddress)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.True(t, pair.PrivateKey.Equal(retrieved))
}

func TestPrivateKeyStore_RetrieveIdentityKey_UnknownReturnsNil(t *testing.T) {
	s := newPrivateKeyStore()
	retrieved, err := s.RetrieveIdentityKey("0" + "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestPrivateKeyStore_SessionKey_UnboundThenRebound(t *testing.T) {
	s := newPrivateKeyStore()
	privateKey, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)
	_, keyID, err := keys.NewSessionKeyID()
	require.NoError(t, err)

	require.NoError(t, s.SaveSessionKey(privateKey, keyID, "owner-address", nil))

	unbound, err := s.RetrieveUnboundSessionKey(keyID, "owner-address")
	require.NoError(t, err)
	assert.True(t, privateKey.Equal(unbound))

	bound, err := s.RetrieveSessionKey(keyID, "owner-address", "peer-a")
	require.NoError(t, err)
	assert.True(t, privateKey.Equal(bound))

	peer := "peer-a"
	require.NoError(t, s.SaveSessionKey(privateKey, keyID, "owner-address", &peer))

	_, err = s.RetrieveUnboundSessionKey(keyID, "owner-address")
	require.Error(t, err)
}

func TestPrivateKeyStore_SessionKey_BoundToDifferentPeerIsRejected(t *testing.T) {
	s := newPrivateKeyStore()
	privateKey, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)
	_, keyID, err := keys.NewSessionKeyID()
	require.NoError(t, err)

	peer := "peer-a"
	require.NoError(t, s.SaveSessionKey(privateKey, keyID, "owner-address", &peer))

	_, err = s.RetrieveSessionKey(keyID, "owner-address", "peer-b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer-a")
	assert.Contains(t, err.Error(), "peer-b")
}

func TestPrivateKeyStore_SessionKey_OwnedByDifferentNodeIsRejected(t *testing.T) {
	s := newPrivateKeyStore()
	privateKey, err := keys.GenerateSessionKeyPair(elliptic.P256())
	require.NoError(t, err)
	_, keyID, err := keys.NewSessionKeyID()
	require.NoError(t, err)

	require.NoError(t, s.SaveSessionKey(privateKey, keyID, "owner-a", nil))

	_, err = s.RetrieveSessionKey(keyID, "owner-b", "peer-a")
	require.Error(t, err)
}

func TestPrivateKeyStore_SessionKey_UnknownKeyIDIsRejected(t *testing.T) {
	s := newPrivateKeyStore()
	_, err := s.RetrieveSessionKey("deadbeefdeadbeef", "owner-address", "peer-a")
	require.Error(t, err)
}
