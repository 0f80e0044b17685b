package core

import "encoding/hex"

// VerifyResult is the outcome of VerifyConfirmation.
type VerifyResult int

const (
	Valid VerifyResult = iota
	InvalidSignature
	InvalidProof
)

func (r VerifyResult) String() string {
	switch r {
	case Valid:
		return "Valid"
	case InvalidSignature:
		return "InvalidSignature"
	default:
		return "InvalidProof"
	}
}

// VerifyConfirmation is the pure function any third party uses to check a
// Confirmation against the authority's published public key (spec
// §4.3.3). It does not touch any shared state. The Merkle proof is checked
// against a tree of ConfirmationBatchSize leaves, so a confirmation from an
// authority configured with a different batch size does not verify.
func VerifyConfirmation(pubKey []byte, conf Confirmation) VerifyResult {
	sigBytes, err := hex.DecodeString(conf.Signature)
	if err != nil || len(sigBytes) != 64 {
		return InvalidSignature
	}
	var sig [64]byte
	copy(sig[:], sigBytes)

	if !VerifyECDSA(pubKey, conf.Root, sig) {
		return InvalidSignature
	}

	proof, err := ParseMerkleProof(conf.Proof.ProofBytes)
	if err != nil {
		return InvalidProof
	}
	if !VerifyMerkleProof(conf.Root, conf.Proof.LeafDigest, proof, conf.Proof.LeafIndex, ConfirmationBatchSize) {
		return InvalidProof
	}
	return Valid
}
