package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/cloudx-io/confidentialbid/enclaveapi"
	"github.com/cloudx-io/confidentialbid/validation"
)

// errInvalid marks a completed validation that failed.
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
	fs := flag.NewFlagSet("key-validator", flag.ContinueOnError)
	var (
		keysPath = fs.String("keys", "", "path to an enclave key response JSON file")
		url      = fs.String("url", "", "auctiond base URL to fetch /v1/keys from, instead of -keys")
		pcrsPath = fs.String("pcrs", validation.DefaultPCRConfigPath(), "known-good PCR sets")
		format   = fs.String("format", "text", "output format: text or json")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Validates the Nitro attestation over an enclave's input and reveal keys.\n\n")
		fmt.Fprintf(fs.Output(), "Usage: key-validator (-keys <path> | -url <base>) [flags]\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nExit codes: 0 valid, 1 invalid, 2 error\n")
	}
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("KEY_VALIDATOR")); err != nil {
		return err
	}

	var (
		keys *enclaveapi.KeyResponse
		err  error
	)
	switch {
	case *keysPath != "":
		keys, err = readKeyResponse(*keysPath)
	case *url != "":
		keys, err = fetchKeyResponse(*url)
	default:
		fs.Usage()
		return fmt.Errorf("one of -keys or -url is required")
	}
	if err != nil {
		return err
	}

	knownPCRs, err := validation.LoadPCRsFromFile(*pcrsPath)
	if err != nil {
		return err
	}

	result, err := validation.ValidateKeyAttestation(*keys, knownPCRs)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if *format == "json" {
		if err := outputJSON(stdout, result); err != nil {
			return err
		}
	} else {
		outputText(stdout, result)
	}

	if !result.IsValid() {
		return errInvalid
	}
	return nil
}

func readKeyResponse(path string) (*enclaveapi.KeyResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key response: %w", err)
	}

	var keys enclaveapi.KeyResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse key response: %w", err)
	}
	return &keys, nil
}

func fetchKeyResponse(base string) (*enclaveapi.KeyResponse, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/v1/keys")
	if err != nil {
		return nil, fmt.Errorf("fetch keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch keys: %s", resp.Status)
	}

	var body struct {
		InputKey    string                           `json:"input_key"`
		RevealKey   string                           `json:"reveal_key"`
		Attestation enclaveapi.AttestationCOSEBase64 `json:"attestation_cose_base64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}

	return &enclaveapi.KeyResponse{
		PublicKey:             body.InputKey,
		RevealKey:             body.RevealKey,
		AttestationCOSEBase64: body.Attestation,
	}, nil
}

func outputText(w io.Writer, result *validation.KeyValidationResult) {
	fmt.Fprintf(w, "PCRs valid:        %v\n", result.PCRsValid)
	fmt.Fprintf(w, "Certificate valid: %v\n", result.CertificateValid)
	fmt.Fprintf(w, "Signature valid:   %v\n", result.SignatureValid)
	fmt.Fprintf(w, "Public key match:  %v\n", result.PublicKeyMatch)
	fmt.Fprintf(w, "Reveal key match:  %v\n", result.RevealKeyMatch)
	fmt.Fprintln(w)
	for _, detail := range result.ValidationDetails {
		fmt.Fprintf(w, "  %s\n", detail)
	}
	fmt.Fprintln(w)
	if result.IsValid() {
		fmt.Fprintln(w, "VALIDATION: PASSED")
	} else {
		fmt.Fprintln(w, "VALIDATION: FAILED")
	}
}

func outputJSON(w io.Writer, result *validation.KeyValidationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"public_key_match":  result.PublicKeyMatch,
		"reveal_key_match":  result.RevealKeyMatch,
		"details":           result.ValidationDetails,
	})
}
