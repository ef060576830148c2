package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/message"
)

// runParcel dispatches the "parcel" subcommands.
func runParcel(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: parcel subcommand is required (create, read)")
		return 2
	}
	switch args[0] {
	case "create":
		return runParcelCreate(args[1:])
	case "read":
		return runParcelRead(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown parcel subcommand %q\n", args[0])
		return 2
	}
}

// runParcelCreate handles "parcel create": encrypts a payload file to a
// recipient, signs it as a Parcel, and writes the serialized message.
func runParcelCreate(args []string) int {
	fs := flag.NewFlagSet("parcel create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	mode := fs.String("mode", "sessionless", "Encryption mode: sessionless or session")
	recipientAddress := fs.String("recipient", "", "Recipient private address")
	id := fs.String("id", "", "Message id (defaults to a random UUID)")
	payloadPath := fs.String("payload", "", "Path to the plaintext SDU file")
	recipientCertPath := fs.String("recipient-cert", "", "Recipient's identity certificate (sessionless mode)")
	recipientSessionKeyID := fs.String("recipient-session-key-id", "", "Recipient's published session key id (session mode)")
	recipientSessionPubPath := fs.String("recipient-session-pub", "", "Recipient's published session public key (session mode)")
	senderKeyPath := fs.String("sender-key", "", "Sender's private key")
	senderCertPath := fs.String("sender-cert", "", "Sender's certificate")
	ttl := fs.Int("ttl", 86400, "Time-to-live in seconds")
	out := fs.String("out", "", "Output path for the serialized Parcel")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *recipientAddress == "" || *payloadPath == "" || *senderKeyPath == "" || *senderCertPath == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --recipient, --payload, --sender-key, --sender-cert, and --out are required")
		return 2
	}

	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read payload: %v\n", err)
		return 1
	}
	senderKeyRaw, err := LoadPrivateKey(*senderKeyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	senderKey, ok := senderKeyRaw.(crypto.Signer)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: sender key does not support signing")
		return 1
	}
	senderCert, err := LoadCertificate(*senderCertPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var parcel *message.Parcel
	switch *mode {
	case "sessionless":
		if *recipientCertPath == "" {
			fmt.Fprintln(os.Stderr, "Error: --recipient-cert is required for sessionless mode")
			return 2
		}
		recipientCert, err := LoadCertificate(*recipientCertPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		parcel, err = message.NewSessionlessParcel(*recipientAddress, *id, payload, recipientCert, senderCert, *ttl, cms.AES128)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	case "session":
		if *recipientSessionKeyID == "" || *recipientSessionPubPath == "" {
			fmt.Fprintln(os.Stderr, "Error: --recipient-session-key-id and --recipient-session-pub are required for session mode")
			return 2
		}
		pubRaw, err := LoadPublicKey(*recipientSessionPubPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		sessionPub, ok := pubRaw.(*ecdsa.PublicKey)
		if !ok {
			fmt.Fprintln(os.Stderr, "Error: recipient session public key is not an ECDSA public key")
			return 1
		}
		var originatorKeyID string
		parcel, originatorKeyID, err = message.NewSessionParcel(*recipientAddress, *id, payload, *recipientSessionKeyID, sessionPub, sessionPub.Curve, senderCert, *ttl, cms.AES128)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("  Originator key id: %s\n", originatorKeyID)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q: must be sessionless or session\n", *mode)
		return 2
	}

	serialized, err := parcel.Serialize(senderKey, cms.DefaultSignatureOptions())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := writeFileAtomic(*out, serialized, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println("Parcel created successfully.")
	fmt.Printf("  Id:      %s\n", parcel.ID)
	fmt.Printf("  Message: %s\n", *out)
	return 0
}

// runParcelRead handles "parcel read": verifies and decodes a Parcel,
// decrypting its payload if a matching private key is given.
func runParcelRead(args []string) int {
	fs := flag.NewFlagSet("parcel read", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	in := fs.String("in", "", "Path to the serialized Parcel")
	identityKeyPath := fs.String("identity-key", "", "Recipient identity private key, to decrypt a sessionless payload")
	sessionKeyPath := fs.String("session-key", "", "Recipient session private key, to decrypt a session payload")
	out := fs.String("out", "", "Output path for the decrypted SDU")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *in == "" {
		fmt.Fprintln(os.Stderr, "Error: --in is required")
		return 2
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read message: %v\n", err)
		return 1
	}

	parcel, err := message.DeserializeParcel(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	senderAddress, _ := parcel.SenderCertificate.CalculateSubjectPrivateAddress()
	fmt.Println("Parcel verified successfully.")
	fmt.Printf("  Id:              %s\n", parcel.ID)
	fmt.Printf("  Recipient:       %s\n", parcel.RecipientAddress)
	fmt.Printf("  Sender address:  %s\n", senderAddress)
	fmt.Printf("  Creation date:   %s\n", parcel.CreationDate)
	fmt.Printf("  TTL:             %d\n", parcel.TTL)

	var plaintext []byte
	switch {
	case *identityKeyPath != "":
		keyRaw, err := LoadPrivateKey(*identityKeyPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		identityKey, ok := keyRaw.(*rsa.PrivateKey)
		if !ok {
			fmt.Fprintln(os.Stderr, "Error: identity key is not an RSA private key")
			return 1
		}
		plaintext, err = parcel.DecryptSessionless(identityKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	case *sessionKeyPath != "":
		keyRaw, err := LoadPrivateKey(*sessionKeyPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		sessionKey, ok := keyRaw.(*ecdsa.PrivateKey)
		if !ok {
			fmt.Fprintln(os.Stderr, "Error: session key is not an ECDSA private key")
			return 1
		}
		plaintext, err = parcel.DecryptSession(sessionKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	default:
		return 0
	}

	if *out != "" {
		if err := writeFileAtomic(*out, plaintext, 0644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("  Plaintext:       %s\n", *out)
	}
	return 0
}
