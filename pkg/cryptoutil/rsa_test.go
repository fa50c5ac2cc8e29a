package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePublicKeyRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	b64, err := EncodePublicKeyB64(&priv.PublicKey)
	require.NoError(t, err)
	require.NotEmpty(t, b64)

	pub, err := DecodePublicKeyB64(b64)
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey.N, pub.N)
	require.Equal(t, priv.PublicKey.E, pub.E)
}

func TestSignAndVerifyTransaction(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	senderB64, err := EncodePublicKeyB64(&priv.PublicKey)
	require.NoError(t, err)

	sig, err := SignTransaction(priv, senderB64, "hello", 12.5)
	require.NoError(t, err)

	ok, err := VerifyTransactionSignature(senderB64, "hello", 12.5, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyTransactionRejectsTamperedAmount(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	senderB64, err := EncodePublicKeyB64(&priv.PublicKey)
	require.NoError(t, err)

	sig, err := SignTransaction(priv, senderB64, "hello", 12.5)
	require.NoError(t, err)

	ok, err := VerifyTransactionSignature(senderB64, "hello", 99, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyTransactionRejectsWrongKey(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	senderB64, err := EncodePublicKeyB64(&priv.PublicKey)
	require.NoError(t, err)
	otherB64, err := EncodePublicKeyB64(&other.PublicKey)
	require.NoError(t, err)

	sig, err := SignTransaction(priv, senderB64, "hello", 1)
	require.NoError(t, err)

	ok, err := VerifyTransactionSignature(otherB64, "hello", 1, sig)
	require.NoError(t, err)
	require.False(t, ok)
}
