package core

// The ECDSA key-custody service is an external collaborator (spec §1): it
// takes a 32-byte hash and returns a 64-byte compact signature, and exposes
// a public key. Signer is the seam; LocalECDSASigner is a reference
// implementation for single-process operation and tests, grounded on the
// secp256k1 sign/verify pair the teacher uses for transaction signing
// (core/transactions.go Sign/VerifySig), via go-ethereum's crypto package.

import (
	"crypto/ecdsa"
	"errors"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer abstracts the key-custody service: sign a 32-byte message hash
// with secp256k1 and return a 64-byte compact (R||S) signature.
type Signer interface {
	Sign(hash [32]byte) ([64]byte, error)
	PublicKey() []byte
}

// LocalECDSASigner holds a secp256k1 keypair in-process. It exists so the
// signature authority can be exercised without a real custody service; a
// production deployment swaps this for an RPC-backed Signer.
type LocalECDSASigner struct {
	priv *ecdsa.PrivateKey
	pub  []byte
}

// NewLocalECDSASigner generates a fresh secp256k1 keypair.
func NewLocalECDSASigner() (*LocalECDSASigner, error) {
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &LocalECDSASigner{
		priv: priv,
		pub:  gethcrypto.FromECDSAPub(&priv.PublicKey),
	}, nil
}

// Sign produces a 64-byte compact signature (R||S, no recovery id) over
// hash, matching the spec's ECDSA contract.
func (s *LocalECDSASigner) Sign(hash [32]byte) ([64]byte, error) {
	sig, err := gethcrypto.Sign(hash[:], s.priv)
	if err != nil {
		return [64]byte{}, err
	}
	if len(sig) != 65 {
		return [64]byte{}, errors.New("externalsigner: unexpected signature length")
	}
	var out [64]byte
	copy(out[:], sig[:64])
	return out, nil
}

// PublicKey returns the uncompressed secp256k1 public key bytes.
func (s *LocalECDSASigner) PublicKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)
	return out
}

// VerifyECDSA checks a 64-byte compact signature over hash against an
// uncompressed public key, mirroring core/transactions.go's VerifySig.
func VerifyECDSA(pub []byte, hash [32]byte, sig [64]byte) bool {
	if len(pub) == 0 {
		return false
	}
	return gethcrypto.VerifySignature(pub, hash[:], sig[:])
}
