package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x7F}, 20)
	addr := NewAddress(EscPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(EscPrefix)+"1") {
		t.Fatalf("expected esc prefix, got %s", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), raw)
	}
	if decoded.Prefix() != EscPrefix {
		t.Fatalf("unexpected prefix %s", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("expected error for invalid bech32 input")
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestKeyDerivesAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	addr := key.PubKey().Address()
	if len(addr.Bytes()) != 20 {
		t.Fatalf("expected 20-byte address, got %d", len(addr.Bytes()))
	}

	// Derivation must be deterministic for the same key.
	again := key.PubKey().Address()
	if addr.String() != again.String() {
		t.Fatal("address derivation must be deterministic")
	}
}
