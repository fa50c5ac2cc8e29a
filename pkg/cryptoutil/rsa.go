package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
)

// KeyBits is the RSA modulus size used for node identities.
const KeyBits = 2048

// GenerateKeyPair creates a fresh RSA private key.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, errors.Wrap(err, "generate rsa key")
	}
	return key, nil
}

// EncodePublicKeyB64 DER-encodes an RSA public key in PKIX
// (SubjectPublicKeyInfo) form via x509 and base64-encodes it without
// padding, the form used for every sender/buyer/seller field on the
// wire. The bare PKCS#1 RSAPublicKey encoding is neither produced here
// nor accepted by DecodePublicKeyB64.
func EncodePublicKeyB64(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errors.Wrap(err, "marshal public key")
	}
	return base64.RawStdEncoding.EncodeToString(der), nil
}

// DecodePublicKeyB64 reverses EncodePublicKeyB64.
func DecodePublicKeyB64(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.RawStdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64 public key")
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse public key")
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaPub, nil
}

// signedDigest hashes the signed tuple (sender_b64, message, transfer)
// with SHA-256. Only this tuple is covered by the signature.
func signedDigest(senderB64, message string, transfer float64) [32]byte {
	payload := fmt.Sprintf("%s|%s|%v", senderB64, message, transfer)
	return sha256.Sum256([]byte(payload))
}

// SignTransaction signs (senderB64, message, transfer) with PKCS#1v1.5
// and returns the base64 (with padding) signature placed on the wire.
func SignTransaction(priv *rsa.PrivateKey, senderB64, message string, transfer float64) (string, error) {
	digest := signedDigest(senderB64, message, transfer)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyTransactionSignature reports whether signatureB64 verifies
// under the sender's declared key for the given (message, transfer).
func VerifyTransactionSignature(senderB64, message string, transfer float64, signatureB64 string) (bool, error) {
	pub, err := DecodePublicKeyB64(senderB64)
	if err != nil {
		return false, errors.Wrap(err, "decode sender key")
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, errors.Wrap(err, "decode signature")
	}

	digest := signedDigest(senderB64, message, transfer)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}
