package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	raw[0] = 0x42
	raw[19] = 0x24

	addr := NewAddress(ActorPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(ActorPrefix)+"1") {
		t.Fatalf("encoded address missing prefix: %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != ActorPrefix {
		t.Fatalf("prefix = %q, want %q", decoded.Prefix(), ActorPrefix)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes mismatch: %x vs %x", decoded.Bytes(), raw)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected decode failure")
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatalf("expected decode failure for empty string")
	}
}

func TestIsZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatalf("empty address must be zero")
	}
	if !NewAddress(ActorPrefix, make([]byte, 20)).IsZero() {
		t.Fatalf("all-zero address must be zero")
	}
	raw := make([]byte, 20)
	raw[5] = 1
	if NewAddress(ActorPrefix, raw).IsZero() {
		t.Fatalf("non-zero address reported zero")
	}
}

func TestKeyDerivesAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.IsZero() {
		t.Fatalf("derived address is zero")
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatalf("restored key derives a different address")
	}
}
