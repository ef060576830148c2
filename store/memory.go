package store

import (
	"sync"
	"time"
)

// InMemoryPrivateKeyStoreBackend is a process-local
// PrivateKeyStoreBackend, the reference implementation used by this
// module's own tests. Production backends persist to disk or a
// database behind the same interface.
type InMemoryPrivateKeyStoreBackend struct {
	mu           sync.Mutex
	identityKeys map[string][]byte
	sessionKeys  map[string]SessionKeyRecord
}

// NewInMemoryPrivateKeyStoreBackend returns an empty backend.
func NewInMemoryPrivateKeyStoreBackend() *InMemoryPrivateKeyStoreBackend {
	return &InMemoryPrivateKeyStoreBackend{
		identityKeys: map[string][]byte{},
		sessionKeys:  map[string]SessionKeyRecord{},
	}
}

func (b *InMemoryPrivateKeyStoreBackend) SaveIdentityKey(privateAddress string, keyDER []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identityKeys[privateAddress] = keyDER
	return nil
}

func (b *InMemoryPrivateKeyStoreBackend) RetrieveIdentityKey(privateAddress string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identityKeys[privateAddress], nil
}

func (b *InMemoryPrivateKeyStoreBackend) SaveSessionKey(keyID string, record SessionKeyRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionKeys[keyID] = record
	return nil
}

func (b *InMemoryPrivateKeyStoreBackend) RetrieveSessionKey(keyID string) (SessionKeyRecord, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.sessionKeys[keyID]
	return record, ok, nil
}

// InMemoryPublicKeyStoreBackend is a process-local
// PublicKeyStoreBackend.
type InMemoryPublicKeyStoreBackend struct {
	mu           sync.Mutex
	identityKeys map[string][]byte
	sessionKeys  map[string]SessionPublicKeyRecord
}

// NewInMemoryPublicKeyStoreBackend returns an empty backend.
func NewInMemoryPublicKeyStoreBackend() *InMemoryPublicKeyStoreBackend {
	return &InMemoryPublicKeyStoreBackend{
		identityKeys: map[string][]byte{},
		sessionKeys:  map[string]SessionPublicKeyRecord{},
	}
}

func (b *InMemoryPublicKeyStoreBackend) SaveIdentityKey(peerPrivateAddress string, keyDER []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identityKeys[peerPrivateAddress] = keyDER
	return nil
}

func (b *InMemoryPublicKeyStoreBackend) RetrieveIdentityKey(peerPrivateAddress string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identityKeys[peerPrivateAddress], nil
}

func (b *InMemoryPublicKeyStoreBackend) SaveSessionKey(peerPrivateAddress string, record SessionPublicKeyRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionKeys[peerPrivateAddress] = record
	return nil
}

func (b *InMemoryPublicKeyStoreBackend) RetrieveSessionKey(peerPrivateAddress string) (SessionPublicKeyRecord, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.sessionKeys[peerPrivateAddress]
	return record, ok, nil
}

// InMemoryCertificateStoreBackend is a process-local
// CertificateStoreBackend. Records are kept per subject address,
// allowing multiple (subject, issuer) tuples and multiple certificates
// per tuple, as the public CertificateStore expects.
type InMemoryCertificateStoreBackend struct {
	mu      sync.Mutex
	records map[string][]CertificateRecord
}

// NewInMemoryCertificateStoreBackend returns an empty backend.
func NewInMemoryCertificateStoreBackend() *InMemoryCertificateStoreBackend {
	return &InMemoryCertificateStoreBackend{records: map[string][]CertificateRecord{}}
}

func (b *InMemoryCertificateStoreBackend) Save(subjectPrivateAddress string, record CertificateRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[subjectPrivateAddress] = append(b.records[subjectPrivateAddress], record)
	return nil
}

func (b *InMemoryCertificateStoreBackend) RetrieveAll(subjectPrivateAddress, issuerPrivateAddress string) ([]CertificateRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matches []CertificateRecord
	for _, record := range b.records[subjectPrivateAddress] {
		if record.IssuerPrivateAddress == issuerPrivateAddress {
			matches = append(matches, record)
		}
	}
	return matches, nil
}

func (b *InMemoryCertificateStoreBackend) DeleteExpired(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for subject, records := range b.records {
		kept := records[:0]
		for _, record := range records {
			if record.ExpiryDate.After(now) {
				kept = append(kept, record)
			}
		}
		if len(kept) == 0 {
			delete(b.records, subject)
		} else {
			b.records[subject] = kept
		}
	}
	return nil
}
