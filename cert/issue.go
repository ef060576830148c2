package cert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramferrors"
)

// IssueOptions configures certificate issuance (spec section 4.4).
type IssueOptions struct {
	IssuerPrivateKey  crypto.Signer
	SubjectPublicKey  crypto.PublicKey
	CommonName        string
	ValidityStartDate time.Time // zero value => now, truncated to seconds
	ValidityEndDate   time.Time
	IssuerCertificate *Certificate // nil => self-signed
	IsCA              bool
	PathLenConstraint int // only meaningful when IsCA; default 0
}

// Issue builds, signs, and returns a new certificate per spec section
// 4.4. The subject DN carries a single CommonName attribute holding the
// subject's private or public address. The serial number is a fresh
// positive 64-bit random value. notAfter is clamped to the issuer's
// notAfter when an issuer certificate is given.
func Issue(opts IssueOptions) (*Certificate, error) {
	if opts.PathLenConstraint < 0 || opts.PathLenConstraint > PathLenConstraintMax {
		return nil, ramferrors.NewCertificate("failed to issue certificate",
			errors.Errorf("pathLenConstraint must be within [0, %d], got %d", PathLenConstraintMax, opts.PathLenConstraint))
	}

	startDate := opts.ValidityStartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}
	startDate = startDate.Truncate(time.Second).UTC()
	endDate := opts.ValidityEndDate.Truncate(time.Second).UTC()

	var issuerDN pkix.Name
	var issuerCert *x509.Certificate
	if opts.IssuerCertificate != nil {
		issuerX509 := opts.IssuerCertificate.X509()
		if !issuerX509.IsCA {
			return nil, ramferrors.NewCertificate("failed to issue certificate",
				errors.New("issuer certificate is not a certificate authority"))
		}
		if endDate.After(issuerX509.NotAfter) {
			endDate = issuerX509.NotAfter
		}
		issuerDN = deepCloneDN(issuerX509.Subject)
		issuerCert = issuerX509
	}

	if endDate.Before(startDate) {
		return nil, ramferrors.NewCertificate("failed to issue certificate",
			errors.New("validity end date precedes start date"))
	}

	subjectDN := pkix.Name{CommonName: opts.CommonName}
	if opts.IssuerCertificate == nil {
		// Self-signed: issuer DN equals subject DN.
		issuerDN = deepCloneDN(subjectDN)
	}

	subjectSPKI, err := keys.SPKIDER(opts.SubjectPublicKey)
	if err != nil {
		return nil, ramferrors.NewCertificate("failed to issue certificate", err)
	}
	subjectSKI := computeSKI(subjectSPKI)

	var authorityKeyID []byte
	if opts.IssuerCertificate != nil {
		issuerSPKI, err := keys.SPKIDER(issuerCert.PublicKey)
		if err != nil {
			return nil, ramferrors.NewCertificate("failed to issue certificate", err)
		}
		authorityKeyID = computeSKI(issuerSPKI)
	} else {
		authorityKeyID = subjectSKI
	}

	serial, err := freshSerial()
	if err != nil {
		return nil, ramferrors.NewCertificate("failed to issue certificate", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:                subjectDN,
		Issuer:                 issuerDN,
		NotBefore:              startDate,
		NotAfter:               endDate,
		BasicConstraintsValid:  true,
		IsCA:                   opts.IsCA,
		SubjectKeyId:           subjectSKI,
		AuthorityKeyId:         authorityKeyID,
		SignatureAlgorithm:     signatureAlgorithm(opts.IssuerPrivateKey),
	}
	if opts.IsCA {
		template.MaxPathLen = opts.PathLenConstraint
		template.MaxPathLenZero = opts.PathLenConstraint == 0
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	}

	parent := template
	if issuerCert != nil {
		parent = issuerCert
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, parent, opts.SubjectPublicKey, opts.IssuerPrivateKey)
	if err != nil {
		return nil, ramferrors.NewCertificate("failed to issue certificate", err)
	}

	return Deserialize(certDER)
}

// signatureAlgorithm selects RSA-PSS with SHA-256 for RSA issuer keys,
// the teacher's fixed choice of SHA-256 over other key types.
func signatureAlgorithm(signer crypto.Signer) x509.SignatureAlgorithm {
	switch signer.Public().(type) {
	case *ecdsa.PublicKey:
		return x509.ECDSAWithSHA256
	case *rsa.PublicKey:
		return x509.SHA256WithRSAPSS
	default:
		return x509.SHA256WithRSAPSS
	}
}

func freshSerial() (*big.Int, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, errors.Wrap(err, "failed to generate serial number")
	}
	// big.Int.SetBytes treats buf as an unsigned magnitude, so the
	// result is always positive; encoding/asn1 prepends 0x00 itself
	// when the DER encoding would otherwise look negative.
	return new(big.Int).SetBytes(buf[:]), nil
}

func deepCloneDN(name pkix.Name) pkix.Name {
	clone := pkix.Name{
		CommonName:         name.CommonName,
		SerialNumber:       name.SerialNumber,
		Organization:       append([]string(nil), name.Organization...),
		OrganizationalUnit: append([]string(nil), name.OrganizationalUnit...),
		Locality:           append([]string(nil), name.Locality...),
		Province:           append([]string(nil), name.Province...),
		StreetAddress:      append([]string(nil), name.StreetAddress...),
		PostalCode:         append([]string(nil), name.PostalCode...),
		Country:            append([]string(nil), name.Country...),
	}
	return clone
}
