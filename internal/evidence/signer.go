package evidence

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Signer holds the ed25519 keypair used to sign and verify evidence
// manifests. The seed is provided as a 32-byte hex string (RCS_EVIDENCE_SIGNING_KEY_HEX);
// the public key is always derived from it, so there is nothing to validate
// for a mismatched pair the way a separately-supplied PEM pair would need.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewSigner builds a Signer from a hex-encoded 32-byte ed25519 seed.
func NewSigner(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("evidence: decoding signing key hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("evidence: signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{private: priv, public: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign returns the base64 standard encoding of the ed25519 signature over payload.
func (s *Signer) Sign(payload []byte) string {
	sig := ed25519.Sign(s.private, payload)
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify reports whether signatureB64 is a valid ed25519 signature over payload.
func (s *Signer) Verify(payload []byte, signatureB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.public, payload, sig)
}
