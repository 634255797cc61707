package attestation

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SchemeEd25519   = "ed25519"
	SchemeSecp256k1 = "secp256k1"
)

// Signer is the enclave's signing key. It is created once at process start
// and only read afterwards, so it is safe to share between requests.
type Signer interface {
	Sign(msg []byte) ([]byte, error)

	PublicKey() []byte

	Scheme() string
}

// NewSigner loads a key for the given scheme from hex. An empty key
// generates an ephemeral key pair that lives as long as the process.
func NewSigner(scheme, keyHex string) (Signer, error) {
	var key []byte
	if keyHex = strings.TrimSpace(keyHex); keyHex != "" {
		var err error
		key, err = hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("error decoding signing key: %w", err)
		}
	}

	switch scheme {
	case SchemeEd25519, "":
		if key == nil {
			return GenerateEd25519Signer()
		}
		return NewEd25519Signer(key)
	case SchemeSecp256k1:
		if key == nil {
			return GenerateSecp256k1Signer()
		}
		return NewSecp256k1Signer(key)
	default:
		return nil, fmt.Errorf("unsupported signing scheme '%s'", scheme)
	}
}

type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func GenerateEd25519Signer() (*Ed25519Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("error generating ed25519 key: %w", err)
	}
	return &Ed25519Signer{key: key}, nil
}

// NewEd25519Signer accepts either a 32 byte seed or a 64 byte private key.
func NewEd25519Signer(key []byte) (*Ed25519Signer, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return &Ed25519Signer{key: ed25519.NewKeyFromSeed(key)}, nil
	case ed25519.PrivateKeySize:
		return &Ed25519Signer{key: ed25519.PrivateKey(append([]byte(nil), key...))}, nil
	default:
		return nil, fmt.Errorf("ed25519 key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(key))
	}
}

func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.key, msg), nil
}

func (s *Ed25519Signer) PublicKey() []byte {
	return []byte(s.key.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) Scheme() string {
	return SchemeEd25519
}

// Secp256k1Signer signs the Keccak-256 digest of the message and returns a
// 65 byte [R || S || V] signature.
type Secp256k1Signer struct {
	key *ecdsa.PrivateKey
}

func GenerateSecp256k1Signer() (*Secp256k1Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("error generating secp256k1 key: %w", err)
	}
	return &Secp256k1Signer{key: key}, nil
}

func NewSecp256k1Signer(key []byte) (*Secp256k1Signer, error) {
	privateKey, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("error parsing secp256k1 key: %w", err)
	}
	return &Secp256k1Signer{key: privateKey}, nil
}

func (s *Secp256k1Signer) Sign(msg []byte) ([]byte, error) {
	signature, err := crypto.Sign(crypto.Keccak256(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("error signing with secp256k1: %w", err)
	}
	return signature, nil
}

// PublicKey returns the 33 byte compressed point.
func (s *Secp256k1Signer) PublicKey() []byte {
	return crypto.CompressPubkey(&s.key.PublicKey)
}

func (s *Secp256k1Signer) Scheme() string {
	return SchemeSecp256k1
}
