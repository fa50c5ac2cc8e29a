// Package wallet owns the node's RSA identity, signs outgoing
// transactions, and persists the private key to disk, optionally
// encrypted under a passphrase.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/pouria-shahmiri/p2pcoin/pkg/cryptoutil"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLen     = 32
	pemBlockType     = "RSA PRIVATE KEY"
)

// Wallet owns a single RSA key pair used to sign every outbound
// transaction the node (or its console) submits.
type Wallet struct {
	priv       *rsa.PrivateKey
	pubB64     string
	keyPath    string
	passphrase string
}

// Generate creates a brand-new identity. Use Load to restore one
// persisted by a previous run.
func Generate(keyPath, passphrase string) (*Wallet, error) {
	priv, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return newWallet(priv, keyPath, passphrase)
}

// Load restores a wallet from keyPath, decrypting it with passphrase
// if it was saved encrypted. If keyPath does not exist, a fresh
// identity is generated and persisted there.
func Load(keyPath, passphrase string) (*Wallet, error) {
	data, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		w, genErr := Generate(keyPath, passphrase)
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := w.save(); saveErr != nil {
			return nil, saveErr
		}
		return w, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read wallet key")
	}

	plain := data
	if passphrase != "" {
		plain, err = decrypt(data, passphrase)
		if err != nil {
			return nil, errors.Wrap(err, "decrypt wallet key")
		}
	}

	block, _ := pem.Decode(plain)
	if block == nil {
		return nil, errors.New("wallet key file is not valid PEM")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse wallet private key")
	}

	return newWallet(priv, keyPath, passphrase)
}

func newWallet(priv *rsa.PrivateKey, keyPath, passphrase string) (*Wallet, error) {
	pubB64, err := cryptoutil.EncodePublicKeyB64(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		priv:       priv,
		pubB64:     pubB64,
		keyPath:    keyPath,
		passphrase: passphrase,
	}, nil
}

// PublicKeyB64 returns the node's DER/base64-encoded RSA public key,
// used as Transaction.Sender on the wire.
func (w *Wallet) PublicKeyB64() string {
	return w.pubB64
}

// Sign produces a ready-to-broadcast Transaction signed by this
// wallet's identity.
func (w *Wallet) Sign(buyer, seller, message string, transfer float64) (types.Transaction, error) {
	sig, err := cryptoutil.SignTransaction(w.priv, w.pubB64, message, transfer)
	if err != nil {
		return types.Transaction{}, err
	}
	return types.Transaction{
		Sender:    w.pubB64,
		Buyer:     buyer,
		Seller:    seller,
		Message:   message,
		Transfer:  transfer,
		Signature: sig,
	}, nil
}

func (w *Wallet) save() error {
	der := x509.MarshalPKCS1PrivateKey(w.priv)
	block := &pem.Block{Type: pemBlockType, Bytes: der}
	plain := pem.EncodeToMemory(block)

	out := plain
	if w.passphrase != "" {
		var err error
		out, err = encrypt(plain, w.passphrase)
		if err != nil {
			return errors.Wrap(err, "encrypt wallet key")
		}
	}

	if err := os.WriteFile(w.keyPath, out, 0o600); err != nil {
		return errors.Wrap(err, "write wallet key")
	}
	return nil
}

// encrypt wraps plaintext in AES-256-GCM keyed by PBKDF2(passphrase).
// Layout: salt(16) || nonce(12) || ciphertext.
func encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	if len(data) < 16+12 {
		return nil, errors.New("wallet key file too short")
	}
	salt, rest := data[:16], data[16:]
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, errors.New("wallet key file truncated")
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	return gcm.Open(nil, nonce, ciphertext, nil)
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}
