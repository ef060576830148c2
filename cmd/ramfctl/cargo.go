package main

import (
	"context"
	"crypto"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/relaynet-go/ramf/cms"
	"github.com/relaynet-go/ramf/message"
)

// runCargo dispatches the "cargo" subcommands.
func runCargo(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: cargo subcommand is required (create, read)")
		return 2
	}
	switch args[0] {
	case "create":
		return runCargoCreate(args[1:])
	case "read":
		return runCargoRead(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown cargo subcommand %q\n", args[0])
		return 2
	}
}

// runCargoCreate handles "cargo create": batches a set of already
// serialized encapsulated messages into one or more CargoMessageSets
// and signs each as a Cargo.
func runCargoCreate(args []string) int {
	fs := flag.NewFlagSet("cargo create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	recipientAddress := fs.String("recipient", "", "Recipient private address")
	id := fs.String("id", "", "Message id (defaults to a random UUID)")
	messagePaths := fs.String("messages", "", "Comma-separated paths to serialized encapsulated messages")
	senderKeyPath := fs.String("sender-key", "", "Sender's private key")
	senderCertPath := fs.String("sender-cert", "", "Sender's certificate")
	ttl := fs.Int("ttl", 86400, "Time-to-live in seconds")
	out := fs.String("out", "", "Output path prefix for the serialized Cargo (batch index appended beyond the first)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *recipientAddress == "" || *messagePaths == "" || *senderKeyPath == "" || *senderCertPath == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --recipient, --messages, --sender-key, --sender-cert, and --out are required")
		return 2
	}

	paths := strings.Split(*messagePaths, ",")
	messages := make([]message.CargoMessage, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read message %s: %v\n", p, err)
			return 1
		}
		messages = append(messages, message.CargoMessage{Serialized: data, ExpiryDate: time.Now().UTC().Add(time.Duration(*ttl) * time.Second)})
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

	idx := 0
	next := func(ctx context.Context) (message.CargoMessage, bool, error) {
		if idx >= len(messages) {
			return message.CargoMessage{}, false, nil
		}
		msg := messages[idx]
		idx++
		return msg, true, nil
	}

	batchCount := 0
	err = message.BatchMessagesSerialized(context.Background(), next, func(batch message.CargoMessageBatch) error {
		cargo := message.NewCargo(*recipientAddress, *id, batch.MessageSetSerialized, senderCert, *ttl)
		serialized, err := cargo.Serialize(senderKey, cms.DefaultSignatureOptions())
		if err != nil {
			return err
		}
		path := *out
		if batchCount > 0 {
			path = fmt.Sprintf("%s.%d", *out, batchCount+1)
		}
		if err := writeFileAtomic(path, serialized, 0644); err != nil {
			return err
		}
		fmt.Printf("  Batch %d: %s\n", batchCount+1, path)
		batchCount++
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println("Cargo created successfully.")
	return 0
}

// runCargoRead handles "cargo read": verifies, decodes, and unbatches
// a Cargo, writing each encapsulated message to its own file.
func runCargoRead(args []string) int {
	fs := flag.NewFlagSet("cargo read", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	in := fs.String("in", "", "Path to the serialized Cargo")
	outDir := fs.String("out-dir", "", "Directory to write encapsulated messages into")

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

	cargo, err := message.DeserializeCargo(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	senderAddress, _ := cargo.SenderCertificate.CalculateSubjectPrivateAddress()
	fmt.Println("Cargo verified successfully.")
	fmt.Printf("  Id:             %s\n", cargo.ID)
	fmt.Printf("  Recipient:      %s\n", cargo.RecipientAddress)
	fmt.Printf("  Sender address: %s\n", senderAddress)
	fmt.Printf("  Creation date:  %s\n", cargo.CreationDate)

	messages, err := message.DeserializeCargoMessageSet(cargo.PayloadSerialized)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("  Messages:       %d\n", len(messages))

	if *outDir == "" {
		return 0
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create output directory: %v\n", err)
		return 1
	}
	for i, msg := range messages {
		path := fmt.Sprintf("%s/message-%03d.bin", *outDir, i)
		if err := writeFileAtomic(path, msg, 0644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return 0
}
