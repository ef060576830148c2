package pki

import (
	"crypto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramf"
)

func generateKey(t *testing.T) crypto.Signer {
	t.Helper()
	key, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)
	return key
}

func TestIssueGatewayCertificate(t *testing.T) {
	rootKey := generateKey(t)
	root, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  rootKey,
		SubjectPublicKey:  rootKey.Public(),
		CommonName:        "root",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 2,
	})
	require.NoError(t, err)

	gatewayKey := generateKey(t)
	gateway, err := IssueGatewayCertificate(rootKey, gatewayKey.Public(), "gateway", root, time.Hour)
	require.NoError(t, err)
	assert.True(t, gateway.IsCA())
}

func TestIssueEndpointCertificate(t *testing.T) {
	gatewayKey := generateKey(t)
	gateway, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  gatewayKey,
		SubjectPublicKey:  gatewayKey.Public(),
		CommonName:        "gateway",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	require.NoError(t, err)

	endpointKey := generateKey(t)
	endpoint, err := IssueEndpointCertificate(gatewayKey, gateway, endpointKey.Public(), "endpoint", time.Hour)
	require.NoError(t, err)
	assert.False(t, endpoint.IsCA())
}

func TestIssueDeliveryAuthorization(t *testing.T) {
	gatewayKey := generateKey(t)
	gateway, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  gatewayKey,
		SubjectPublicKey:  gatewayKey.Public(),
		CommonName:        "gateway",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	require.NoError(t, err)

	cda, err := IssueDeliveryAuthorization(gatewayKey, gateway, time.Hour)
	require.NoError(t, err)
	assert.False(t, cda.IsCA())
	assert.Equal(t, gateway.X509().Subject.CommonName, cda.X509().Subject.CommonName)
}

func TestRenewCDAIfNeeded_RenewsWhenBelowThreshold(t *testing.T) {
	gatewayKey := generateKey(t)
	gateway, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  gatewayKey,
		SubjectPublicKey:  gatewayKey.Public(),
		CommonName:        "gateway",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(365 * 24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	require.NoError(t, err)

	current, err := IssueDeliveryAuthorization(gatewayKey, gateway, 30*24*time.Hour) // below the 90-day threshold
	require.NoError(t, err)

	renewed, err := RenewCDAIfNeeded(current, gatewayKey, gateway)
	require.NoError(t, err)
	assert.True(t, renewed.X509().NotAfter.After(current.X509().NotAfter))

	expectedValidity := time.Now().UTC().Add(ramf.CDARenewedValiditySeconds * time.Second)
	assert.WithinDuration(t, expectedValidity, renewed.X509().NotAfter, time.Minute)
}

func TestRenewCDAIfNeeded_NoopWhenNotYetDue(t *testing.T) {
	gatewayKey := generateKey(t)
	gateway, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  gatewayKey,
		SubjectPublicKey:  gatewayKey.Public(),
		CommonName:        "gateway",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(365 * 24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	require.NoError(t, err)

	current, err := IssueDeliveryAuthorization(gatewayKey, gateway, ramf.CDARenewedValiditySeconds*time.Second)
	require.NoError(t, err)

	renewed, err := RenewCDAIfNeeded(current, gatewayKey, gateway)
	require.NoError(t, err)
	assert.Equal(t, current.X509().NotAfter, renewed.X509().NotAfter)
}

func TestValidatePath(t *testing.T) {
	rootKey := generateKey(t)
	root, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  rootKey,
		SubjectPublicKey:  rootKey.Public(),
		CommonName:        "root",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	require.NoError(t, err)

	leafKey := generateKey(t)
	leaf, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  rootKey,
		SubjectPublicKey:  leafKey.Public(),
		CommonName:        "leaf",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(time.Hour),
		IssuerCertificate: root,
	})
	require.NoError(t, err)

	path, err := ValidatePath(leaf, nil, []*cert.Certificate{root})
	require.NoError(t, err)
	assert.Equal(t, leaf.Serialize(), path.Leaf.Serialize())
}

func TestValidatePath_RejectsExpiredLeaf(t *testing.T) {
	rootKey := generateKey(t)
	root, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  rootKey,
		SubjectPublicKey:  rootKey.Public(),
		CommonName:        "root",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(24 * time.Hour),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	require.NoError(t, err)

	leafKey := generateKey(t)
	leaf, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  rootKey,
		SubjectPublicKey:  leafKey.Public(),
		CommonName:        "leaf",
		ValidityStartDate: time.Now().UTC(),
		ValidityEndDate:   time.Now().UTC().Add(time.Millisecond),
		IssuerCertificate: root,
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = ValidatePath(leaf, nil, []*cert.Certificate{root})
	require.Error(t, err)
}
