// Package session implements the channel session protocol spec
// section 2 and 4.3 describe: generating a node's published session
// key, encrypting to a peer's published session key, and resolving +
// binding the recipient-side session private key on first use.
package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramferrors"
	"github.com/relaynet-go/ramf/store"
)

// GenerateInitialKeyPair generates a fresh unbound session key pair
// for ownerPrivateAddress and persists the private half, returning the
// key id and public key a node publishes so peers can encrypt to it.
func GenerateInitialKeyPair(privateKeyStore *store.PrivateKeyStore, ownerPrivateAddress string, curve elliptic.Curve) (keyID string, publicKey *ecdsa.PublicKey, err error) {
	privateKey, err := keys.GenerateSessionKeyPair(curve)
	if err != nil {
		return "", nil, ramferrors.NewCMS("failed to generate session key pair", err)
	}
	_, keyIDHex, err := keys.NewSessionKeyID()
	if err != nil {
		return "", nil, ramferrors.NewCMS("failed to generate session key id", err)
	}
	if err := privateKeyStore.SaveSessionKey(privateKey, keyIDHex, ownerPrivateAddress, nil); err != nil {
		return "", nil, err
	}
	return keyIDHex, &privateKey.PublicKey, nil
}

// Originator encrypts outgoing payloads to peers' published session
// keys.
type Originator struct {
	publicKeyStore *store.PublicKeyStore
}

// NewOriginator builds an Originator backed by publicKeyStore, which
// resolves peers' currently published session keys.
func NewOriginator(publicKeyStore *store.PublicKeyStore) *Originator {
	return &Originator{publicKeyStore: publicKeyStore}
}

// Encrypt encrypts plaintext to peerPrivateAddress's currently
// published session key, generating a fresh originator ephemeral key
// pair per message. It returns the originator ephemeral key id
// alongside the envelope.
func (o *Originator) Encrypt(plaintext []byte, peerPrivateAddress string, curve elliptic.Curve, keySize cms.AESKeySize) ([]byte, string, error) {
	peerKey, err := o.publicKeyStore.RetrieveSessionKey(peerPrivateAddress)
	if err != nil {
		return nil, "", err
	}
	if peerKey == nil {
		return nil, "", ramferrors.NewUnknownKey("no session key is published for peer " + peerPrivateAddress)
	}
	return cms.EncryptSession(plaintext, peerKey.KeyID, peerKey.PublicKey, curve, keySize)
}

// Recipient resolves and binds session private keys on the receiving
// side of a channel.
type Recipient struct {
	privateKeyStore     *store.PrivateKeyStore
	ownerPrivateAddress string
}

// NewRecipient builds a Recipient owning the session keys stored under
// ownerPrivateAddress.
func NewRecipient(privateKeyStore *store.PrivateKeyStore, ownerPrivateAddress string) *Recipient {
	return &Recipient{privateKeyStore: privateKeyStore, ownerPrivateAddress: ownerPrivateAddress}
}

// Decrypt recovers the plaintext from a session-variant CMS
// EnvelopedData, resolving the recipient session private key by the
// envelope's key id. An unbound key is consumed and rebound to
// peerPrivateAddress on first successful use; a key already bound to a
// different peer is rejected with UnknownKeyError.
func (r *Recipient) Decrypt(envelopeDER []byte, peerPrivateAddress string) ([]byte, error) {
	parsed, err := cms.ParseEnvelope(envelopeDER)
	if err != nil {
		return nil, err
	}
	if parsed.Variant != cms.VariantSession {
		return nil, ramferrors.NewCMS("failed to decrypt channel session payload",
			errors.New("envelope is not the session-key-agreement variant"))
	}
	keyID := parsed.GetRecipientKeyID()

	sessionKey, bindErr := r.privateKeyStore.RetrieveSessionKey(keyID, r.ownerPrivateAddress, peerPrivateAddress)
	if bindErr != nil {
		return nil, bindErr
	}

	plaintext, err := parsed.DecryptSession(sessionKey)
	if err != nil {
		return nil, err
	}

	peer := peerPrivateAddress
	if err := r.privateKeyStore.SaveSessionKey(sessionKey, keyID, r.ownerPrivateAddress, &peer); err != nil {
		return nil, err
	}
	return plaintext, nil
}
