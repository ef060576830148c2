package ramf

import (
	"bytes"
	"crypto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/keys"
)

func issueSelfSigned(t *testing.T) (crypto.Signer, *cert.Certificate) {
	t.Helper()
	key, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)
	now := time.Now().UTC()
	c, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  key,
		SubjectPublicKey:  key.Public(),
		CommonName:        "sender",
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(24 * time.Hour),
		IsCA:              true,
	})
	require.NoError(t, err)
	return key, c
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: "0" + strings.Repeat("a", 64),
		ID:               "msg-1",
		CreationDate:     time.Now().UTC(),
		TTL:              1000,
		Payload:          bytes.Repeat([]byte{0xAB}, 32),
	}

	serialized, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.NoError(t, err)
	require.Equal(t, FormatSignaturePrefix, string(serialized[:8]))
	require.Equal(t, ParcelType, serialized[8])
	require.Equal(t, ParcelVersion, serialized[9])

	result, err := Deserialize(serialized, ParcelType, ParcelVersion)
	require.NoError(t, err)
	assert.Equal(t, fields.RecipientAddress, result.Fields.RecipientAddress)
	assert.Equal(t, fields.ID, result.Fields.ID)
	assert.Equal(t, fields.TTL, result.Fields.TTL)
	assert.Equal(t, fields.Payload, result.Fields.Payload)
	assert.Equal(t, fields.CreationDate.Truncate(time.Second).Unix(), result.Fields.CreationDate.Unix())
}

func TestDeserialize_RejectsTypeVersionMismatch(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: "0" + strings.Repeat("a", 64),
		ID:               "msg-1",
		CreationDate:     time.Now().UTC(),
		TTL:              1000,
		Payload:          bytes.Repeat([]byte{0xAB}, 32),
	}
	serialized, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.NoError(t, err)

	_, err = Deserialize(serialized, CargoType, CargoVersion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x50")
	assert.Contains(t, err.Error(), "0x43")
}

func TestDeserialize_RejectsMissingFormatSignature(t *testing.T) {
	_, err := Deserialize([]byte("not a ramf message at all"), ParcelType, ParcelVersion)
	require.Error(t, err)
}

func TestDeserialize_RejectsOverLengthMessage(t *testing.T) {
	oversized := make([]byte, MaxMessageLength+1)
	_, err := Deserialize(oversized, ParcelType, ParcelVersion)
	require.Error(t, err)
}

func TestSerialize_RejectsOverLongRecipientAddress(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: strings.Repeat("a", MaxRecipientAddressLength+1),
		ID:               "msg-1",
		CreationDate:     time.Now().UTC(),
		TTL:              1000,
		Payload:          []byte("hi"),
	}
	_, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.Error(t, err)
}

func TestSerialize_RejectsOverLongID(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: "0" + strings.Repeat("a", 64),
		ID:               strings.Repeat("m", MaxIDLength+1),
		CreationDate:     time.Now().UTC(),
		TTL:              1000,
		Payload:          []byte("hi"),
	}
	_, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.Error(t, err)
}

func TestSerialize_RejectsOutOfRangeTTL(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: "0" + strings.Repeat("a", 64),
		ID:               "msg-1",
		CreationDate:     time.Now().UTC(),
		TTL:              MaxTTL + 1,
		Payload:          []byte("hi"),
	}
	_, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.Error(t, err)
}

func TestSerialize_RejectsOverLongPayload(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: "0" + strings.Repeat("a", 64),
		ID:               "msg-1",
		CreationDate:     time.Now().UTC(),
		TTL:              1000,
		Payload:          make([]byte, MaxPayloadLength+1),
	}
	_, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.Error(t, err)
}

func TestDeserialize_RejectsTamperedSignature(t *testing.T) {
	key, signerCert := issueSelfSigned(t)
	fields := Fields{
		RecipientAddress: "0" + strings.Repeat("a", 64),
		ID:               "msg-1",
		CreationDate:     time.Now().UTC(),
		TTL:              1000,
		Payload:          bytes.Repeat([]byte{0xAB}, 32),
	}
	serialized, err := Serialize(fields, ParcelType, ParcelVersion, key, signerCert, nil, cms.DefaultSignatureOptions())
	require.NoError(t, err)

	tampered := append([]byte(nil), serialized...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = Deserialize(tampered, ParcelType, ParcelVersion)
	require.Error(t, err)
}
