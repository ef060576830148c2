// Command ramfctl is a small CLI exercising this module's packages:
// generating identity and session keys, issuing certificates, and
// producing/reading Parcel and Cargo RAMF messages against a local
// data directory.
package main

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// logger emits one structured line per invocation to stderr; the
// human-readable report for a command's own output goes to stdout.
var logger = level.NewFilter(
	log.NewLogfmtLogger(os.Stderr),
	level.AllowInfo(),
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var exitCode int
	switch cmd {
	case "identity":
		exitCode = runIdentity(args)
	case "issue":
		exitCode = runIssue(args)
	case "session":
		exitCode = runSession(args)
	case "parcel":
		exitCode = runParcel(args)
	case "cargo":
		exitCode = runCargo(args)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
		printUsage()
		exitCode = 2
	}

	level.Info(logger).Log("cmd", cmd, "exit_code", exitCode)
	os.Exit(exitCode)
}

// resolveDataDir resolves the data directory: --data-dir flag > RAMF_DATA_DIR env > "./ramf-data".
func resolveDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envVal := os.Getenv("RAMF_DATA_DIR"); envVal != "" {
		return envVal
	}
	return "./ramf-data"
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: ramfctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  identity generate   Generate an RSA identity key pair and self-signed certificate")
	fmt.Fprintln(os.Stderr, "  issue               Issue a certificate under an existing identity")
	fmt.Fprintln(os.Stderr, "  session generate    Generate a session (ECDH) key pair")
	fmt.Fprintln(os.Stderr, "  parcel create       Build and sign a Parcel message")
	fmt.Fprintln(os.Stderr, "  parcel read         Verify, decode, and decrypt a Parcel message")
	fmt.Fprintln(os.Stderr, "  cargo create        Batch payload files and sign a Cargo message")
	fmt.Fprintln(os.Stderr, "  cargo read          Verify, decode, and unbatch a Cargo message")
}
