package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudx-io/confidentialbid/confidential"
)

func TestExe(t *testing.T) {
	ctx := context.Background()

	keys, err := confidential.NewKeyManager()
	if err != nil {
		t.Fatal(err)
	}
	engine := confidential.NewEngine(keys)

	h, err := engine.Encrypt(ctx, "organizer", 90)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.GrantDecrypt(ctx, "organizer", h, "bidder-a"); err != nil {
		t.Fatal(err)
	}
	reveal, err := engine.Decrypt(ctx, "bidder-a", h)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	revealPath := filepath.Join(dir, "reveal.json")
	data, err := json.Marshal(reveal)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(revealPath, data, 0o600); err != nil {
		t.Fatal(err)
	}

	keyPath := filepath.Join(dir, "reveal_key.pem")
	pem, err := keys.RevealKeyPEM()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, []byte(pem), 0o600); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := exe(&stdout, []string{"-reveal", revealPath, "-reveal-key", keyPath, "-requester", "bidder-a", "-handle", h.String()}); err != nil {
		t.Fatalf("exe: %v\n%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), "Value:           90") {
		t.Errorf("output does not show the value:\n%s", stdout.String())
	}

	stdout.Reset()
	err = exe(&stdout, []string{"-reveal", revealPath, "-reveal-key", keyPath, "-requester", "bidder-b"})
	if !errors.Is(err, errInvalid) {
		t.Errorf("want errInvalid, have %v", err)
	}

	if err := exe(&stdout, []string{"-reveal", revealPath}); err == nil || errors.Is(err, errInvalid) {
		t.Errorf("missing -reveal-key: want usage error, have %v", err)
	}
}
