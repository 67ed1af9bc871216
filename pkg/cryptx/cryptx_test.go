package cryptx

import (
	"bytes"
	"strings"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func TestSealUnsealRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("my dog's name is Buddy")

	sealed, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed output contains the plaintext")
	}

	got, err := Unseal(sealed, key)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestUnsealRejectsWrongKey(t *testing.T) {
	sealed, err := Seal([]byte("secret"), testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unseal(sealed, testKey(t)); err == nil {
		t.Fatal("expected unseal with a different key to fail")
	}
}

func TestSealRejectsShortKey(t *testing.T) {
	if _, err := Seal([]byte("x"), []byte("short")); err == nil {
		t.Fatal("expected an error for a non-256-bit key")
	}
}

func TestSealStringCarriesPrefix(t *testing.T) {
	key := testKey(t)
	stored, err := SealString("hello", key)
	if err != nil {
		t.Fatalf("SealString: %v", err)
	}
	if !IsSealed(stored) {
		t.Fatalf("expected sealed prefix on %q", stored)
	}
	if !strings.HasPrefix(stored, sealedPrefix) {
		t.Fatalf("expected prefix %q, got %q", sealedPrefix, stored)
	}

	got, err := UnsealString(stored, key)
	if err != nil {
		t.Fatalf("UnsealString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestUnsealStringPassesPlaintextThrough(t *testing.T) {
	got, err := UnsealString("not sealed at all", testKey(t))
	if err != nil {
		t.Fatalf("UnsealString: %v", err)
	}
	if got != "not sealed at all" {
		t.Fatalf("expected unprefixed input unchanged, got %q", got)
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}
	a := DeriveKey("correct horse battery staple", salt, 1000)
	b := DeriveKey("correct horse battery staple", salt, 1000)
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical keys for identical passphrase+salt")
	}
	if len(a) != KeySize {
		t.Fatalf("expected %d-byte key, got %d", KeySize, len(a))
	}

	other := DeriveKey("different passphrase", salt, 1000)
	if bytes.Equal(a, other) {
		t.Fatal("expected different passphrases to derive different keys")
	}
}

type mapKeyStore struct {
	key   []byte
	saves int
}

func (m *mapKeyStore) Load() ([]byte, error) {
	if m.key == nil {
		return nil, ErrKeyNotFound
	}
	return m.key, nil
}

func (m *mapKeyStore) Save(key []byte) error {
	m.key = key
	m.saves++
	return nil
}

func TestLoadOrCreateMasterKeyPersistsOnce(t *testing.T) {
	store := &mapKeyStore{}

	first, err := LoadOrCreateMasterKey(store)
	if err != nil {
		t.Fatalf("LoadOrCreateMasterKey: %v", err)
	}
	second, err := LoadOrCreateMasterKey(store)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected the same key across calls")
	}
	if store.saves != 1 {
		t.Fatalf("expected exactly one save, got %d", store.saves)
	}
}
