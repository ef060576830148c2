package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/ramf"
)

func TestCargo_RoundTrip(t *testing.T) {
	senderKey, senderCert := issueIdentity(t, "gateway")
	payload := []byte("a serialized cargo message set")

	cargo := NewCargo("0"+mustAddress(t, senderCert), "cargo-1", payload, senderCert, 86400)
	serialized, err := cargo.Serialize(senderKey, cms.DefaultSignatureOptions())
	require.NoError(t, err)

	roundTripped, err := DeserializeCargo(serialized)
	require.NoError(t, err)
	assert.Equal(t, "cargo-1", roundTripped.ID)
	assert.Equal(t, payload, roundTripped.PayloadSerialized)
}

func TestCargo_ClampsCreationDateForClockDrift(t *testing.T) {
	_, senderCert := issueIdentity(t, "gateway")
	before := time.Now().UTC()

	cargo := NewCargo("recipient-address", "cargo-1", []byte("x"), senderCert, 86400)

	expected := before.Add(-ramf.CargoClockDriftToleranceSeconds * time.Second)
	assert.WithinDuration(t, expected, cargo.CreationDate, 5*time.Second)
}

func TestCargo_ClampsTTLToMax(t *testing.T) {
	_, senderCert := issueIdentity(t, "gateway")
	cargo := NewCargo("recipient-address", "cargo-1", []byte("x"), senderCert, ramf.MaxTTL+1000)
	assert.Equal(t, ramf.MaxTTL, cargo.TTL)
}

func TestCargo_DefaultsID(t *testing.T) {
	_, senderCert := issueIdentity(t, "gateway")
	cargo := NewCargo("recipient-address", "", []byte("x"), senderCert, 3600)
	assert.NotEmpty(t, cargo.ID)
}

func mustAddress(t *testing.T, c *cert.Certificate) string {
	t.Helper()
	addr, err := c.CalculateSubjectPrivateAddress()
	require.NoError(t, err)
	return addr
}
