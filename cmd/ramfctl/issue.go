package main

import (
	"crypto"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/pki"
)

// runIssue handles the "issue" command: issues a certificate under an
// existing issuer identity for a role this PKI recognizes.
func runIssue(args []string) int {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	role := fs.String("role", "endpoint", "Certificate role: gateway, endpoint, or cda")
	issuerKeyPath := fs.String("issuer-key", "", "Path to the issuer's private key")
	issuerCertPath := fs.String("issuer-cert", "", "Path to the issuer's certificate")
	subjectKeyPath := fs.String("subject-key", "", "Path to the subject's private key (its public half is certified); unused for --role cda")
	commonName := fs.String("common-name", "", "Certificate common name")
	validity := fs.Int("validity", 180, "Validity period in days")
	out := fs.String("out", "", "Output path for the issued certificate")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if *issuerKeyPath == "" || *issuerCertPath == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --issuer-key, --issuer-cert, and --out are required")
		return 2
	}
	if *validity <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --validity must be a positive integer")
		return 2
	}

	issuerKeyRaw, err := LoadPrivateKey(*issuerKeyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	issuerKey, ok := issuerKeyRaw.(crypto.Signer)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: issuer key does not support signing")
		return 1
	}
	issuerCert, err := LoadCertificate(*issuerCertPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	validFor := time.Duration(*validity) * 24 * time.Hour

	issued, err := issueByRole(*role, issuerKey, issuerCert, *subjectKeyPath, *commonName, validFor)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := SaveCertificate(*out, issued); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	subjectAddress, _ := issued.CalculateSubjectPrivateAddress()
	fmt.Println("Certificate issued successfully.")
	fmt.Printf("  Role:            %s\n", *role)
	fmt.Printf("  Subject address: %s\n", subjectAddress)
	fmt.Printf("  Certificate:     %s\n", *out)
	return 0
}

func issueByRole(role string, issuerKey crypto.Signer, issuerCert *cert.Certificate, subjectKeyPath, commonName string, validFor time.Duration) (*cert.Certificate, error) {
	switch role {
	case "gateway":
		subjectPub, err := loadSubjectPublicKey(subjectKeyPath)
		if err != nil {
			return nil, err
		}
		return pki.IssueGatewayCertificate(issuerKey, subjectPub, commonName, issuerCert, validFor)
	case "endpoint":
		subjectPub, err := loadSubjectPublicKey(subjectKeyPath)
		if err != nil {
			return nil, err
		}
		return pki.IssueEndpointCertificate(issuerKey, issuerCert, subjectPub, commonName, validFor)
	case "cda":
		return pki.IssueDeliveryAuthorization(issuerKey, issuerCert, validFor)
	default:
		return nil, fmt.Errorf("unknown role %q: must be gateway, endpoint, or cda", role)
	}
}

func loadSubjectPublicKey(path string) (crypto.PublicKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--subject-key is required for this role")
	}
	raw, err := LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	signer, ok := raw.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("subject key at %s does not support signing", path)
	}
	return signer.Public(), nil
}
