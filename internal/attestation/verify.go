package attestation

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("signature verification failed")

func VerifySignature(scheme string, publicKey, msg, signature []byte) error {
	switch scheme {
	case SchemeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
		}
		if !ed25519.Verify(ed25519.PublicKey(publicKey), msg, signature) {
			return ErrInvalidSignature
		}
		return nil

	case SchemeSecp256k1:
		if len(signature) != crypto.SignatureLength {
			return fmt.Errorf("%w: expected %d byte signature, got %d", ErrInvalidSignature, crypto.SignatureLength, len(signature))
		}
		digest := crypto.Keccak256(msg)
		if !crypto.VerifySignature(publicKey, digest, signature[:crypto.RecoveryIDOffset]) {
			return ErrInvalidSignature
		}

		// The recovery id is not covered by VerifySignature, so check that
		// it recovers the same key.
		recovered, err := crypto.SigToPub(digest, signature)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		expected, err := crypto.DecompressPubkey(publicKey)
		if err != nil {
			expected, err = crypto.UnmarshalPubkey(publicKey)
			if err != nil {
				return fmt.Errorf("invalid secp256k1 public key: %w", err)
			}
		}
		if !bytes.Equal(crypto.CompressPubkey(recovered), crypto.CompressPubkey(expected)) {
			return ErrInvalidSignature
		}
		return nil

	default:
		return fmt.Errorf("unsupported signing scheme '%s'", scheme)
	}
}

// Verify recomputes the canonical encoding of the signed message and checks
// the signature against it.
func Verify[T Payload](scheme string, publicKey []byte, signed Signed[T]) error {
	return VerifySignature(scheme, publicKey, signed.Response.Canonical(), signed.Signature)
}
