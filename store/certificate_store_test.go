package store

import (
	"crypto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/keys"
)

func newCertificateStore() *CertificateStore {
	return NewCertificateStore(NewInMemoryCertificateStoreBackend())
}

func issueTestCert(t *testing.T, commonName string, validFor time.Duration) (crypto.Signer, *cert.Certificate) {
	t.Helper()
	key, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)
	now := time.Now().UTC()
	c, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  key,
		SubjectPublicKey:  key.Public(),
		CommonName:        commonName,
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(validFor),
		IsCA:              true,
	})
	require.NoError(t, err)
	return key, c
}

func TestCertificateStore_SaveAndRetrieveLatest(t *testing.T) {
	s := newCertificateStore()
	_, leaf := issueTestCert(t, "leaf", time.Hour)
	subjectAddress, err := leaf.CalculateSubjectPrivateAddress()
	require.NoError(t, err)

	path := &cert.CertificationPath{Leaf: leaf}
	require.NoError(t, s.Save(path, "issuer-address"))

	retrieved, err := s.RetrieveLatest(subjectAddress, "issuer-address")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, leaf.Serialize(), retrieved.Leaf.Serialize())
}

func TestCertificateStore_Save_SkipsAlreadyExpiredLeaf(t *testing.T) {
	s := newCertificateStore()
	_, leaf := issueTestCert(t, "leaf", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	subjectAddress, err := leaf.CalculateSubjectPrivateAddress()
	require.NoError(t, err)

	path := &cert.CertificationPath{Leaf: leaf}
	require.NoError(t, s.Save(path, "issuer-address"))

	retrieved, err := s.RetrieveLatest(subjectAddress, "issuer-address")
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestCertificateStore_RetrieveLatest_PicksMaxExpiry(t *testing.T) {
	s := newCertificateStore()
	key, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)
	now := time.Now().UTC()

	shortLived, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  key,
		SubjectPublicKey:  key.Public(),
		CommonName:        "leaf",
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(time.Hour),
		IsCA:              true,
	})
	require.NoError(t, err)
	longLived, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  key,
		SubjectPublicKey:  key.Public(),
		CommonName:        "leaf",
		ValidityStartDate: now,
		ValidityEndDate:   now.Add(48 * time.Hour),
		IsCA:              true,
	})
	require.NoError(t, err)
	subjectAddress, err := shortLived.CalculateSubjectPrivateAddress()
	require.NoError(t, err)

	require.NoError(t, s.Save(&cert.CertificationPath{Leaf: shortLived}, "issuer-address"))
	require.NoError(t, s.Save(&cert.CertificationPath{Leaf: longLived}, "issuer-address"))

	retrieved, err := s.RetrieveLatest(subjectAddress, "issuer-address")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, longLived.X509().NotAfter, retrieved.Leaf.X509().NotAfter)
}

func TestCertificateStore_RetrieveAll_ReturnsAllNonExpired(t *testing.T) {
	s := newCertificateStore()
	key, err := keys.GenerateIdentityKeyPair(keys.MinRSAModulusBits, crypto.SHA256)
	require.NoError(t, err)
	now := time.Now().UTC()

	a, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey: key, SubjectPublicKey: key.Public(), CommonName: "leaf",
		ValidityStartDate: now, ValidityEndDate: now.Add(time.Hour), IsCA: true,
	})
	require.NoError(t, err)
	b, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey: key, SubjectPublicKey: key.Public(), CommonName: "leaf",
		ValidityStartDate: now, ValidityEndDate: now.Add(2 * time.Hour), IsCA: true,
	})
	require.NoError(t, err)
	subjectAddress, err := a.CalculateSubjectPrivateAddress()
	require.NoError(t, err)

	require.NoError(t, s.Save(&cert.CertificationPath{Leaf: a}, "issuer-address"))
	require.NoError(t, s.Save(&cert.CertificationPath{Leaf: b}, "issuer-address"))

	all, err := s.RetrieveAll(subjectAddress, "issuer-address")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCertificateStore_DeleteExpired(t *testing.T) {
	s := newCertificateStore()
	_, leaf := issueTestCert(t, "leaf", time.Hour)
	subjectAddress, err := leaf.CalculateSubjectPrivateAddress()
	require.NoError(t, err)
	require.NoError(t, s.Save(&cert.CertificationPath{Leaf: leaf}, "issuer-address"))

	require.NoError(t, s.DeleteExpired())

	retrieved, err := s.RetrieveLatest(subjectAddress, "issuer-address")
	require.NoError(t, err)
	assert.NotNil(t, retrieved, "DeleteExpired must not purge a record that has not expired yet")
}
