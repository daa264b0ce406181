// Package identity holds mined node identities: creation, local
// proof-of-work verification and at-rest storage.
package identity

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/dwsnet/dwsctl/pkg/pow"
)

const (
	// CompressedPubKeySize is the secp256k1 compressed public key size.
	CompressedPubKeySize = 33

	privateKeySize = 32
)

var (
	ErrInvalidRecord       = errors.New("invalid identity record")
	ErrProofOfWorkMismatch = errors.New("proof of work mismatch")
)

// Identity is a mined node identity. It is created once by mining and is
// immutable afterwards. PrivateKey is sensitive and must only be written
// through Store, which keeps files at 0600.
type Identity struct {
	NodeID     string    `yaml:"nodeId"`
	PublicKey  string    `yaml:"publicKey"`
	PrivateKey string    `yaml:"privateKey"`
	Nonce      pow.Nonce `yaml:"nonce"`
	Difficulty int       `yaml:"difficulty"`
	MinedAt    time.Time `yaml:"minedAt"`
}

// Validate checks the record is well formed before any use of it.
func (id *Identity) Validate() error {
	pub, err := hex.DecodeString(id.PublicKey)
	if err != nil {
		return errors.Wrap(ErrInvalidRecord, "public key is not hex")
	}
	if len(pub) != CompressedPubKeySize {
		return errors.Wrapf(ErrInvalidRecord, "public key is %d bytes, want %d", len(pub), CompressedPubKeySize)
	}

	if id.PrivateKey != "" {
		priv, err := hex.DecodeString(id.PrivateKey)
		if err != nil {
			return errors.Wrap(ErrInvalidRecord, "private key is not hex")
		}
		if len(priv) != privateKeySize {
			return errors.Wrapf(ErrInvalidRecord, "private key is %d bytes, want %d", len(priv), privateKeySize)
		}
	}

	if _, err := pow.NodeIDFromHex(id.NodeID); err != nil {
		return errors.Wrap(ErrInvalidRecord, "node id")
	}

	return nil
}

// CheckProof recomputes the node id from the stored public key and nonce
// and cross-checks it against the record. The returned error carries the
// expected and computed values.
func (id *Identity) CheckProof() error {
	if err := id.Validate(); err != nil {
		return err
	}

	pub, _ := hex.DecodeString(id.PublicKey)
	stored, _ := pow.NodeIDFromHex(id.NodeID)

	computed := pow.ComputeNodeID(pub, id.Nonce)
	if computed != stored {
		return errors.Wrapf(ErrProofOfWorkMismatch, "node id %s, recomputed %s", stored, computed)
	}

	if d := computed.Difficulty(); d < id.Difficulty {
		return errors.Wrapf(ErrProofOfWorkMismatch, "recorded difficulty %d, digest has %d", id.Difficulty, d)
	}

	return nil
}

// Verify reports whether the identity's proof of work holds. It never
// returns an error; callers wanting diagnostics use CheckProof.
func (id *Identity) Verify() bool {
	return id.CheckProof() == nil
}

func (id *Identity) String() string {
	return fmt.Sprintf("%s (difficulty %d)", id.NodeID, id.Difficulty)
}
