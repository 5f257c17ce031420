package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/validation"
)

var errInvalid = errors.New("validation failed")

func main() {
	err := exe(os.Stdout, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case errors.Is(err, errInvalid):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
}

func exe(stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("reveal-validator", flag.ContinueOnError)
	var (
		revealPath    = fs.String("reveal", "", "path to a reveal JSON document, as returned by POST /v1/reveal")
		revealKeyPath = fs.String("reveal-key", "", "path to the enclave reveal key PEM")
		requester     = fs.String("requester", "", "expected requester (optional)")
		handle        = fs.String("handle", "", "expected handle (optional)")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Verifies that a revealed value was signed by the enclave.\n\n")
		fmt.Fprintf(fs.Output(), "Usage: reveal-validator -reveal <path> -reveal-key <pem> [flags]\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nExit codes: 0 valid, 1 invalid, 2 error\n")
	}
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("REVEAL_VALIDATOR")); err != nil {
		return err
	}

	if *revealPath == "" || *revealKeyPath == "" {
		fs.Usage()
		return fmt.Errorf("-reveal and -reveal-key are required")
	}

	data, err := os.ReadFile(*revealPath)
	if err != nil {
		return fmt.Errorf("read reveal: %w", err)
	}
	var reveal confidential.AttestedReveal
	if err := json.Unmarshal(data, &reveal); err != nil {
		return fmt.Errorf("parse reveal: %w", err)
	}

	revealKey, err := os.ReadFile(*revealKeyPath)
	if err != nil {
		return fmt.Errorf("read reveal key: %w", err)
	}

	result, err := validation.ValidateReveal(reveal.COSE, string(revealKey), core.Address(*requester), *handle)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	fmt.Fprintf(stdout, "Signature valid: %v\n", result.SignatureValid)
	fmt.Fprintf(stdout, "Requester match: %v\n", result.RequesterMatch)
	fmt.Fprintf(stdout, "Handle match:    %v\n", result.HandleMatch)
	if result.Reveal != nil {
		fmt.Fprintf(stdout, "Handle:          %s\n", result.Reveal.Handle)
		fmt.Fprintf(stdout, "Requester:       %s\n", result.Reveal.Requester)
		fmt.Fprintf(stdout, "Value:           %d\n", result.Reveal.Value)
	}
	for _, detail := range result.ValidationDetails {
		fmt.Fprintf(stdout, "  %s\n", detail)
	}

	if !result.IsValid() {
		return errInvalid
	}
	return nil
}
