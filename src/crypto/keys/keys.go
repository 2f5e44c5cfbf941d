package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/subki/federation/src/common"
)

/*
All the functions here are wrappers around the ed25519 types of the standard
library. Keys and signatures travel as hex strings with the 0X prefix that
common.EncodeToString produces.
*/

// GenerateKey creates a new ed25519 key-pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// PublicKeyHex returns the hexadecimal representation of the raw public key.
func PublicKeyHex(pub ed25519.PublicKey) string {
	return common.EncodeToString(pub)
}

// ParsePublicKey decodes a hex public key and checks its length.
func ParsePublicKey(pubHex string) (ed25519.PublicKey, error) {
	raw, err := common.DecodeFromString(pubHex)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length, need %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Sign signs the message with the private key and returns the hex signature.
func Sign(priv ed25519.PrivateKey, message []byte) string {
	return common.EncodeToString(ed25519.Sign(priv, message))
}

// Verify checks a hex signature over message against a hex public key. It
// never returns an error: malformed hex, wrong-length keys or signatures, and
// cryptographic failure all yield false. Callers cannot, and must not, tell
// those cases apart.
func Verify(pubHex string, message []byte, sigHex string) bool {
	pub, err := ParsePublicKey(pubHex)
	if err != nil {
		return false
	}

	sig, err := common.DecodeFromString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, message, sig)
}

// DumpPrivateKey exports a private key into a binary dump. Only the 32-byte
// seed is written; the full key is re-derived on read.
func DumpPrivateKey(priv ed25519.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return priv.Seed()
}

// ParsePrivateKey re-creates a private key from a seed dump.
func ParsePrivateKey(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length, need %d bytes", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
