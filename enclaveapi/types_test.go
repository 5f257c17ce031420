package enclaveapi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/confidentialbid/confidential"
)

func TestAttestationCOSE_Encode(t *testing.T) {
	coseBytes := AttestationCOSE([]byte("mock-cose-attestation-data"))

	encoded := coseBytes.EncodeBase64()
	check.NotEqual(t, "", encoded)

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

func TestAttestationCOSE_EncodeURLSafe(t *testing.T) {
	coseBytes := AttestationCOSE([]byte("mock-cose-attestation-data-for-url-encoding"))

	encoded := coseBytes.EncodeURLSafe()
	check.False(t, strings.ContainsAny(encoded.String(), "=+/"))

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

func TestAttestationCOSEBase64_Decode(t *testing.T) {
	tests := []struct {
		name    string
		input   AttestationCOSEBase64
		wantErr bool
	}{
		{name: "valid base64", input: "bW9jay1jb3NlLWF0dGVzdGF0aW9u"},
		{name: "illegal characters", input: "not-valid-base64!!!@@@", wantErr: true},
		{name: "wrong padding", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decode()

			if tt.wantErr {
				check.Error(t, err)
				check.True(t, strings.Contains(err.Error(), "decode COSE base64"))
				check.Nil(t, result)
				return
			}
			check.Nil(t, err)
			check.NotNil(t, result)
		})
	}
}

func TestAttestationCOSEURLBase64_Decode(t *testing.T) {
	tests := []struct {
		input AttestationCOSEURLBase64
		want  AttestationCOSE
	}{
		{input: "YWJj", want: AttestationCOSE("abc")},
		{input: "dGVzdA", want: AttestationCOSE("test")},
		{input: "dGVzdA==", want: AttestationCOSE("test")},
		{input: "dGVzdGluZw", want: AttestationCOSE("testing")},
	}

	for _, tt := range tests {
		t.Run(tt.input.String(), func(t *testing.T) {
			result, err := tt.input.Decode()
			check.Nil(t, err)
			check.Equal(t, tt.want, result)
		})
	}
}

func mockAttestation(t *testing.T, userData, nonce []byte) AttestationCOSE {
	t.Helper()

	pcr := func(s string) []byte {
		b, err := hex.DecodeString(s)
		if err != nil {
			t.Fatalf("bad pcr %q: %v", s, err)
		}
		return b
	}

	doc := map[string]any{
		"module_id": "i-0abc-enc0123",
		"digest":    "SHA384",
		"timestamp": uint64(1767225600000),
		"pcrs": map[uint64][]byte{
			0: pcr("3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
			1: pcr("4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
			2: pcr("2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
		},
		"certificate": []byte("cert"),
		"cabundle":    [][]byte{[]byte("root"), []byte("intermediate")},
		"public_key":  []byte("pk"),
		"user_data":   userData,
		"nonce":       nonce,
	}

	payload, err := cbor.Marshal(doc)
	assert.Nil(t, err)

	cose, err := cbor.Marshal([]any{[]byte{0xa1, 0x01, 0x38, 0x22}, map[any]any{}, payload, []byte("sig")})
	assert.Nil(t, err)

	return cose
}

func TestParseAttestationDoc(t *testing.T) {
	userData, err := json.Marshal(KeyAttestationUserData{KeyAlgorithm: "RSA-2048", PublicKey: "pem", RevealAlgorithm: "ES256", RevealKey: "reveal-pem"})
	assert.Nil(t, err)

	doc, raw, err := mockAttestation(t, userData, []byte("nonce-1")).ParseAttestationDoc()
	assert.Nil(t, err)

	check.Equal(t, "i-0abc-enc0123", doc.ModuleID)
	check.Equal(t, "SHA384", doc.DigestAlgorithm)
	check.Equal(t, int64(1767225600000), doc.Timestamp.UnixMilli())
	check.Equal(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57", doc.PCRs.ImageFileHash)
	check.Equal(t, "", doc.PCRs.IAMRoleHash)
	check.Equal(t, 2, len(doc.CABundle))
	check.Equal(t, "nonce-1", doc.Nonce)

	var parsed KeyAttestationUserData
	assert.Nil(t, json.Unmarshal(raw, &parsed))
	check.Equal(t, "reveal-pem", parsed.RevealKey)
}

func TestParseAttestationDoc_Invalid(t *testing.T) {
	for name, input := range map[string]AttestationCOSE{
		"not cbor":    AttestationCOSE("garbage"),
		"short array": mustCBOR(t, []any{[]byte{1}, []byte{2}}),
		"bad payload": mustCBOR(t, []any{[]byte{1}, map[any]any{}, []byte("not-a-map"), []byte{3}}),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := input.ParseAttestationDoc()
			check.Error(t, err)
		})
	}
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	b, err := cbor.Marshal(v)
	assert.Nil(t, err)
	return b
}

func TestResponseErr(t *testing.T) {
	check.Nil(t, (&Response{Type: TypeResult}).Err())

	resp := errorResponse(errorCode(fmt.Errorf("decrypt: %w", confidential.ErrNotAllowed)), errors.New("nope"))
	err := resp.Err()
	check.True(t, errors.Is(err, confidential.ErrNotAllowed))

	var remote *RemoteError
	check.True(t, errors.As(err, &remote))
	check.Equal(t, CodeNotAllowed, remote.Code)

	resp = errorResponse(errorCode(errors.New("boom")), errors.New("boom"))
	err = resp.Err()
	check.Error(t, err)
	check.False(t, errors.Is(err, confidential.ErrNotAllowed))
	check.Equal(t, "enclave: boom", err.Error())
}
