package main

import (
	"crypto"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/keys"
)

// runIdentity dispatches the "identity" subcommands.
func runIdentity(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: identity subcommand is required (generate)")
		return 2
	}
	switch args[0] {
	case "generate":
		return runIdentityGenerate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown identity subcommand %q\n", args[0])
		return 2
	}
}

// runIdentityGenerate handles "identity generate": a fresh RSA identity
// key pair plus a self-signed certificate authority certificate for it,
// written as identity.key and identity.crt under the data directory.
func runIdentityGenerate(args []string) int {
	fs := flag.NewFlagSet("identity generate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	commonName := fs.String("common-name", "", "Certificate common name (defaults to the private address)")
	modulusBits := fs.Int("modulus-bits", 2048, "RSA modulus size in bits")
	validity := fs.Int("validity", 3650, "Validity period in days")
	dataDir := fs.String("data-dir", "", "Data directory path")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *validity <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --validity must be a positive integer")
		return 2
	}

	dir := resolveDataDir(*dataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create data directory: %v\n", err)
		return 1
	}

	privateKey, err := keys.GenerateIdentityKeyPair(*modulusBits, crypto.SHA256)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	privateAddress, err := keys.PrivateAddress(&privateKey.PublicKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	name := *commonName
	if name == "" {
		name = privateAddress
	}

	now := time.Now().UTC()
	identityCert, err := cert.Issue(cert.IssueOptions{
		IssuerPrivateKey:  privateKey,
		SubjectPublicKey:  &privateKey.PublicKey,
		CommonName:        name,
		ValidityStartDate: now,
		ValidityEndDate:   now.AddDate(0, 0, *validity),
		IsCA:              true,
		PathLenConstraint: 1,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	keyPath := filepath.Join(dir, "identity.key")
	certPath := filepath.Join(dir, "identity.crt")
	if err := SavePrivateKey(keyPath, privateKey); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := SaveCertificate(certPath, identityCert); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println("Identity generated successfully.")
	fmt.Printf("  Private address: %s\n", privateAddress)
	fmt.Printf("  Common name:     %s\n", name)
	fmt.Printf("  Key:             %s\n", keyPath)
	fmt.Printf("  Certificate:     %s\n", certPath)
	return 0
}
