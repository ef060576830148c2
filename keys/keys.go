// Package keys implements key-pair generation and the identity
// derivations spec section 2 calls "key primitives": RSA-PSS identity
// keys, ECDH session keys on NIST curves, and a node's private address.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
)

// MinRSAModulusBits is the minimum identity-key modulus size spec
// section 4.5.1 requires.
const MinRSAModulusBits = 2048

// AllowedIdentityHashes enumerates the hashes an identity key pair may
// be bound to; SHA-1 is explicitly rejected.
var AllowedIdentityHashes = map[crypto.Hash]bool{
	crypto.SHA256: true,
	crypto.SHA384: true,
	crypto.SHA512: true,
}

// GenerateIdentityKeyPair generates an RSA key pair for use as a node's
// long-term identity key. modulusBits must be at least 2048; hash must
// be one of SHA-256/384/512.
func GenerateIdentityKeyPair(modulusBits int, hash crypto.Hash) (*rsa.PrivateKey, error) {
	if modulusBits < MinRSAModulusBits {
		return nil, errors.Errorf("RSA modulus must be at least %d bits, got %d", MinRSAModulusBits, modulusBits)
	}
	if !AllowedIdentityHashes[hash] {
		return nil, errors.Errorf("unsupported identity key hash %v", hash)
	}
	return rsa.GenerateKey(rand.Reader, modulusBits)
}

// AllowedSessionCurves enumerates the NIST curves a session (ECDH) key
// pair may use.
var AllowedSessionCurves = map[elliptic.Curve]bool{
	elliptic.P256(): true,
	elliptic.P384(): true,
	elliptic.P521(): true,
}

// GenerateSessionKeyPair generates an ephemeral or long-lived ECDH key
// pair on the given NIST curve. The key is represented as *ecdsa.PrivateKey
// because that is what crypto/x509 marshals into SPKI DER; callers that
// need to perform the actual key agreement call its ECDH() bridge method
// to obtain a crypto/ecdh key.
func GenerateSessionKeyPair(curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	if !AllowedSessionCurves[curve] {
		return nil, errors.New("session keys must use NIST P-256, P-384, or P-521")
	}
	return ecdsa.GenerateKey(curve, rand.Reader)
}

// SPKIDER returns the DER encoding of pub's SubjectPublicKeyInfo.
func SPKIDER(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal public key")
	}
	return der, nil
}

// PrivateAddress computes a node's private address: the lowercase hex
// SHA-256 digest of the public key's SPKI DER, prefixed with the fixed
// version octet "0". Two distinct keys yield distinct addresses with
// cryptographic probability.
func PrivateAddress(pub crypto.PublicKey) (string, error) {
	spki, err := SPKIDER(pub)
	if err != nil {
		return "", errors.Wrap(err, "failed to compute private address")
	}
	digest := sha256.Sum256(spki)
	return "0" + hex.EncodeToString(digest[:]), nil
}

// NewSessionKeyID generates a fresh 64-bit random session key id, in
// both its raw 8-byte big-endian form and its lowercase hex form used
// for store lookups.
func NewSessionKeyID() (raw [8]byte, hexID string, err error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return raw, "", errors.Wrap(err, "failed to generate session key id")
	}
	return buf, hex.EncodeToString(buf[:]), nil
}

// KeyIDFromBytes validates and returns the hex form of an 8-byte key id
// read off the wire.
func KeyIDFromBytes(b []byte) (string, error) {
	if len(b) != 8 {
		return "", errors.Errorf("key id must be 8 bytes, got %d", len(b))
	}
	return hex.EncodeToString(b), nil
}

// KeyIDToBytes decodes a hex key id back to its 8-byte wire form.
func KeyIDToBytes(hexID string) ([8]byte, error) {
	var out [8]byte
	b, err := hex.DecodeString(hexID)
	if err != nil {
		return out, errors.Wrap(err, "failed to decode key id")
	}
	if len(b) != 8 {
		return out, errors.Errorf("key id must be 8 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Uint64KeyID renders a raw 8-byte key id as its big-endian unsigned
// integer value, e.g. for log messages.
func Uint64KeyID(raw [8]byte) uint64 {
	return binary.BigEndian.Uint64(raw[:])
}

// ECDHSharedSecret performs the key-agreement step between a local ECDH
// key pair and a peer's public key, using crypto/ecdsa's bridge to
// crypto/ecdh. Both keys must be on the same curve.
func ECDHSharedSecret(priv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey) ([]byte, error) {
	localECDH, err := priv.ECDH()
	if err != nil {
		return nil, errors.Wrap(err, "local key is not valid for ECDH")
	}
	peerECDH, err := peerPub.ECDH()
	if err != nil {
		return nil, errors.Wrap(err, "peer key is not valid for ECDH")
	}
	secret, err := localECDH.ECDH(peerECDH)
	if err != nil {
		return nil, errors.Wrap(err, "key agreement failed")
	}
	return secret, nil
}
