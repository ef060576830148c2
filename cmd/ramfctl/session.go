package main

import (
	"crypto/elliptic"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/relaynet-go/ramf/keys"
)

// runSession dispatches the "session" subcommands.
func runSession(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: session subcommand is required (generate)")
		return 2
	}
	switch args[0] {
	case "generate":
		return runSessionGenerate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown session subcommand %q\n", args[0])
		return 2
	}
}

// runSessionGenerate handles "session generate": a fresh ECDH key
// pair a node publishes as its current session key.
func runSessionGenerate(args []string) int {
	fs := flag.NewFlagSet("session generate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	curveName := fs.String("curve", "p256", "NIST curve: p256, p384, or p521")
	out := fs.String("out", "", "Output path for the session private key")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --out is required")
		return 2
	}

	curve, err := resolveCurve(*curveName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	privateKey, err := keys.GenerateSessionKeyPair(curve)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	_, keyID, err := keys.NewSessionKeyID()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := SavePrivateKey(*out, privateKey); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	pubPath := *out + ".pub"
	if err := SavePublicKey(pubPath, &privateKey.PublicKey); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println("Session key pair generated successfully.")
	fmt.Printf("  Key id:     %s\n", keyID)
	fmt.Printf("  Key:        %s\n", *out)
	fmt.Printf("  Public key: %s\n", pubPath)
	return 0
}

func resolveCurve(name string) (elliptic.Curve, error) {
	switch name {
	case "p256":
		return elliptic.P256(), nil
	case "p384":
		return elliptic.P384(), nil
	case "p521":
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("unknown curve %q: must be p256, p384, or p521", name)
	}
}
