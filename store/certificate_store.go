package store

import (
	"time"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/ramferrors"
)

// CertificateRecord is a stored certification path, indexed
// externally by the subject's private address.
type CertificateRecord struct {
	Serialization        []byte
	ExpiryDate           time.Time
	IssuerPrivateAddress string
}

// CertificateStoreBackend is the persistence primitive a backend
// implements.
type CertificateStoreBackend interface {
	Save(subjectPrivateAddress string, record CertificateRecord) error
	RetrieveAll(subjectPrivateAddress, issuerPrivateAddress string) ([]CertificateRecord, error)
	DeleteExpired(now time.Time) error
}

// CertificateStore is the public surface spec section 4.5.3 describes.
type CertificateStore struct {
	backend CertificateStoreBackend
}

// NewCertificateStore wraps backend with the public CertificateStore
// operations.
func NewCertificateStore(backend CertificateStoreBackend) *CertificateStore {
	return &CertificateStore{backend: backend}
}

// Save persists path under (leaf subject, issuerPrivateAddress). It
// is a no-op if the leaf is already expired.
func (s *CertificateStore) Save(path *cert.CertificationPath, issuerPrivateAddress string) error {
	now := time.Now().UTC()
	if !path.Leaf.X509().NotAfter.After(now) {
		return nil
	}

	subjectAddress, err := path.Leaf.CalculateSubjectPrivateAddress()
	if err != nil {
		return err
	}
	der, err := path.Serialize()
	if err != nil {
		return err
	}

	record := CertificateRecord{
		Serialization:        der,
		ExpiryDate:           path.Leaf.X509().NotAfter,
		IssuerPrivateAddress: issuerPrivateAddress,
	}
	if err := s.backend.Save(subjectAddress, record); err != nil {
		return ramferrors.NewKeyStore(subjectAddress, err)
	}
	return nil
}

// RetrieveLatest returns the non-expired record for (subject, issuer)
// with the greatest expiry date, or nil if there is none.
func (s *CertificateStore) RetrieveLatest(subjectPrivateAddress, issuerPrivateAddress string) (*cert.CertificationPath, error) {
	records, err := s.nonExpired(subjectPrivateAddress, issuerPrivateAddress)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	latest := records[0]
	for _, candidate := range records[1:] {
		if candidate.ExpiryDate.After(latest.ExpiryDate) {
			latest = candidate
		}
	}
	return cert.DeserializeCertificationPath(latest.Serialization)
}

// RetrieveAll returns every non-expired record for (subject, issuer),
// in unspecified order.
func (s *CertificateStore) RetrieveAll(subjectPrivateAddress, issuerPrivateAddress string) ([]*cert.CertificationPath, error) {
	records, err := s.nonExpired(subjectPrivateAddress, issuerPrivateAddress)
	if err != nil {
		return nil, err
	}
	paths := make([]*cert.CertificationPath, 0, len(records))
	for _, record := range records {
		path, err := cert.DeserializeCertificationPath(record.Serialization)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// DeleteExpired purges every stored record with expiryDate <= now,
// best-effort.
func (s *CertificateStore) DeleteExpired() error {
	if err := s.backend.DeleteExpired(time.Now().UTC()); err != nil {
		return ramferrors.NewKeyStore("", err)
	}
	return nil
}

func (s *CertificateStore) nonExpired(subjectPrivateAddress, issuerPrivateAddress string) ([]CertificateRecord, error) {
	all, err := s.backend.RetrieveAll(subjectPrivateAddress, issuerPrivateAddress)
	if err != nil {
		return nil, ramferrors.NewKeyStore(subjectPrivateAddress, err)
	}
	now := time.Now().UTC()
	kept := make([]CertificateRecord, 0, len(all))
	for _, record := range all {
		if record.ExpiryDate.After(now) {
			kept = append(kept, record)
		}
	}
	return kept, nil
}
