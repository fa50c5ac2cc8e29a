package wallet

import (
	"path/filepath"
	"testing"

	"github.com/pouria-shahmiri/p2pcoin/pkg/cryptoutil"
)

func TestGenerateProducesVerifiableSignatures(t *testing.T) {
	dir := t.TempDir()
	w, err := Generate(filepath.Join(dir, "wallet.key"), "")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	tx, err := w.Sign("buyer", "seller", "hello", 5)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if tx.Sender != w.PublicKeyB64() {
		t.Fatal("expected signed transaction sender to be the wallet's public key")
	}

	ok, err := cryptoutil.VerifyTransaction(tx)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a freshly signed transaction to verify")
	}
}

func TestLoadGeneratesOnFirstRunAndRestoresAfter(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")

	first, err := Load(keyPath, "")
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}

	second, err := Load(keyPath, "")
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}

	if first.PublicKeyB64() != second.PublicKeyB64() {
		t.Fatal("expected restoring from disk to recover the same identity")
	}
}

func TestLoadRoundTripsThroughPassphraseEncryption(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")

	first, err := Load(keyPath, "correct horse battery staple")
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}

	second, err := Load(keyPath, "correct horse battery staple")
	if err != nil {
		t.Fatalf("second load with correct passphrase failed: %v", err)
	}
	if first.PublicKeyB64() != second.PublicKeyB64() {
		t.Fatal("expected the same identity after an encrypted round trip")
	}

	if _, err := Load(keyPath, "wrong passphrase"); err == nil {
		t.Fatal("expected loading with the wrong passphrase to fail")
	}
}
