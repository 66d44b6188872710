// Command zkpok creates and checks Schnorr proofs of knowledge over
// ristretto255 and logs in to a zkpokd server.
//
// Usage:
//
//	zkpok keygen
//	zkpok witness -secret HEX
//	zkpok prove   -secret HEX -message TEXT
//	zkpok verify  -witness HEX -message TEXT -proof HEX
//	zkpok login   -server URL -secret HEX
//
// verify exits 0 for a valid proof, 1 for an invalid one and 2 for
// malformed input.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/allsmog/zkpok-go/pkg/client"
	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
	"github.com/allsmog/zkpok-go/pkg/crypto/random"
	"github.com/allsmog/zkpok-go/pkg/crypto/schnorr"
)

const (
	exitOK        = 0
	exitInvalid   = 1
	exitUsage     = 2
	exitMalformed = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "keygen":
		err = keygen(rest, stdout, stderr)
	case "witness":
		err = witness(rest, stdout, stderr)
	case "prove":
		err = prove(rest, stdout, stderr)
	case "verify":
		return verify(rest, stdout, stderr)
	case "login":
		err = login(rest, stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "zkpok: unknown command %q\n", cmd)
		usage(stderr)
		return exitUsage
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "zkpok %s: %v\n", cmd, err)
		}
		return exitUsage
	}
	return exitOK
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: zkpok <keygen|witness|prove|verify|login> [flags]")
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("zkpok "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func schemeFor(hashName string) (*schnorr.Scheme, error) {
	fn, err := curve.HashFromName(hashName)
	if err != nil {
		return nil, err
	}
	return schnorr.New(schnorr.WithHash(fn)), nil
}

func parseSecret(s string) (*curve.Scalar, error) {
	if s == "" {
		return nil, fmt.Errorf("-secret is required")
	}
	secret := curve.NewScalar()
	if err := secret.UnmarshalText([]byte(s)); err != nil {
		return nil, fmt.Errorf("invalid secret: %w", err)
	}
	return secret, nil
}

func messageBytes(text, hexMsg string) ([]byte, error) {
	if hexMsg != "" {
		if text != "" {
			return nil, fmt.Errorf("use only one of -message and -message-hex")
		}
		return hex.DecodeString(hexMsg)
	}
	return []byte(text), nil
}

func keygen(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("keygen", stderr)
	showWitness := fs.Bool("witness", false, "Also print the witness")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := random.NonZeroScalar(random.System)
	if err != nil {
		return err
	}
	defer secret.Zeroize()

	text, _ := secret.MarshalText()
	fmt.Fprintln(stdout, string(text))

	if *showWitness {
		w, err := schnorr.NewWitness(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, w.String())
	}
	return nil
}

func witness(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("witness", stderr)
	secretHex := fs.String("secret", "", "Secret scalar (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := parseSecret(*secretHex)
	if err != nil {
		return err
	}
	defer secret.Zeroize()

	w, err := schnorr.NewWitness(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, w.String())
	return nil
}

func prove(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("prove", stderr)
	secretHex := fs.String("secret", "", "Secret scalar (hex)")
	message := fs.String("message", "", "Message to bind the proof to")
	messageHex := fs.String("message-hex", "", "Message to bind the proof to (hex)")
	hashName := fs.String("hash", "sha512", "Challenge hash (sha512|sha3-512|blake2b-512)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scheme, err := schemeFor(*hashName)
	if err != nil {
		return err
	}

	msg, err := messageBytes(*message, *messageHex)
	if err != nil {
		return err
	}

	secret, err := parseSecret(*secretHex)
	if err != nil {
		return err
	}
	defer secret.Zeroize()

	proof, err := scheme.Prove(secret, msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, proof.String())
	return nil
}

func verify(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("verify", stderr)
	witnessHex := fs.String("witness", "", "Witness (hex)")
	proofHex := fs.String("proof", "", "Proof (hex)")
	message := fs.String("message", "", "Message the proof is bound to")
	messageHex := fs.String("message-hex", "", "Message the proof is bound to (hex)")
	hashName := fs.String("hash", "sha512", "Challenge hash (sha512|sha3-512|blake2b-512)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	fail := func(err error) int {
		fmt.Fprintf(stderr, "zkpok verify: %v\n", err)
		return exitMalformed
	}

	scheme, err := schemeFor(*hashName)
	if err != nil {
		return fail(err)
	}

	msg, err := messageBytes(*message, *messageHex)
	if err != nil {
		return fail(err)
	}

	w, err := hex.DecodeString(*witnessHex)
	if err != nil {
		return fail(fmt.Errorf("%w: witness is not hex", schnorr.ErrMalformedProof))
	}

	p, err := hex.DecodeString(*proofHex)
	if err != nil {
		return fail(fmt.Errorf("%w: proof is not hex", schnorr.ErrMalformedProof))
	}

	ok, err := scheme.VerifyBytes(p, w, msg)
	if err != nil {
		return fail(err)
	}

	if !ok {
		fmt.Fprintln(stdout, "invalid")
		return exitInvalid
	}
	fmt.Fprintln(stdout, "valid")
	return exitOK
}

func login(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("login", stderr)
	server := fs.String("server", "http://localhost:8080", "zkpokd base URL")
	secretHex := fs.String("secret", "", "Secret scalar (hex)")
	audience := fs.String("audience", "", "Token audience (server default if empty)")
	register := fs.Bool("register", false, "Register the witness before logging in")
	hashName := fs.String("hash", "sha512", "Challenge hash (sha512|sha3-512|blake2b-512)")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scheme, err := schemeFor(*hashName)
	if err != nil {
		return err
	}

	secret, err := parseSecret(*secretHex)
	if err != nil {
		return err
	}
	defer secret.Zeroize()

	c, err := client.New(*server, *audience, secret, client.WithScheme(scheme))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *register {
		if err := c.Register(ctx, nil); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		fmt.Fprintf(stderr, "registered witness %s\n", c.Witness())
	}

	token, err := c.Login(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token.AccessToken)
	return nil
}
