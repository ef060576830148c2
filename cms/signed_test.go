package cms

import (
	"crypto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/keys"
)

func issueTestIdentity(t *testing.T) (*cert.Certificate, crypto.Signer) {
	t.Helper()
	key, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)
	now := time.Now().UTC()
	c, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  key,
		SubjectPublicKey:  key.Public(),
		CommonName:        "node",
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(time.Hour),
		IsCA:              true,
	})
	require.NoError(t, err)
	return c, key
}

func TestSignVerify_EncapsulatedRoundTrip(t *testing.T) {
	signerCert, signerKey := issueTestIdentity(t)
	plaintext := []byte("hello relaynet")

	der, err := Sign(plaintext, signerKey, signerCert, nil, DefaultSignatureOptions())
	require.NoError(t, err)

	result, err := Verify(der, nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, result.Plaintext)
	assert.Equal(t, signerCert.Serialize(), result.SignerCertificate.Serialize())
}

func TestSignVerify_DetachedRoundTrip(t *testing.T) {
	signerCert, signerKey := issueTestIdentity(t)
	plaintext := []byte("detached content")

	der, err := Sign(plaintext, signerKey, signerCert, nil, SignatureOptions{Hash: crypto.SHA256, Encapsulated: false})
	require.NoError(t, err)

	_, err = Verify(der, nil)
	require.Error(t, err, "a detached signature can't verify without the external plaintext")

	result, err := Verify(der, plaintext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, result.Plaintext)
}

func TestVerify_RejectsTamperedContent(t *testing.T) {
	signerCert, signerKey := issueTestIdentity(t)
	der, err := Sign([]byte("original"), signerKey, signerCert, nil, DefaultSignatureOptions())
	require.NoError(t, err)

	tampered := append([]byte(nil), der...)
	// The last byte falls in the SignerInfo's signature value; flipping
	// it leaves the DER framing intact but the signature no longer
	// verifies.
	tampered[len(tampered)-1] ^= 0xFF

	_, err = Verify(tampered, nil)
	require.Error(t, err)
}

func TestSign_RejectsUnsupportedHash(t *testing.T) {
	signerCert, signerKey := issueTestIdentity(t)
	_, err := Sign([]byte("x"), signerKey, signerCert, nil, SignatureOptions{Hash: crypto.MD5, Encapsulated: true})
	require.Error(t, err)
}
