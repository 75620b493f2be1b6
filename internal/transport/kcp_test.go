package transport

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterministicAndSized(t *testing.T) {
	k1 := DeriveKey("it's a secret")
	k2 := DeriveKey("it's a secret")
	if !bytes.Equal(k1, k2) {
		t.Fatal("DeriveKey should be deterministic for the same passphrase")
	}
	if len(k1) != 32 {
		t.Fatalf("DeriveKey length = %d, want 32", len(k1))
	}

	k3 := DeriveKey("a different secret")
	if bytes.Equal(k1, k3) {
		t.Fatal("DeriveKey should differ across passphrases")
	}
}

func TestSelectBlockCryptKnownMethods(t *testing.T) {
	key := DeriveKey("test-key")
	for method := range cryptMethods {
		block, effective := SelectBlockCrypt(method, key)
		if effective != method {
			t.Fatalf("SelectBlockCrypt(%q) effective = %q, want %q", method, effective, method)
		}
		if method != "null" && block == nil {
			t.Fatalf("SelectBlockCrypt(%q) returned a nil BlockCrypt", method)
		}
	}
}

func TestSelectBlockCryptUnknownFallsBackToAES(t *testing.T) {
	key := DeriveKey("test-key")
	block, effective := SelectBlockCrypt("not-a-real-cipher", key)
	if effective != "aes" {
		t.Fatalf("effective = %q, want aes", effective)
	}
	if block == nil {
		t.Fatal("fallback BlockCrypt should not be nil")
	}
}

func TestDefaultKCPOptions(t *testing.T) {
	opt := DefaultKCPOptions()
	if opt.DataShard != 10 || opt.ParityShard != 3 {
		t.Fatalf("unexpected FEC defaults: %+v", opt)
	}
	if !opt.StreamMode {
		t.Fatal("DefaultKCPOptions should enable stream mode")
	}
}
