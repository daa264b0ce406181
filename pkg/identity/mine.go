package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"time"

	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/dwsnet/dwsctl/pkg/pow"
)

// GenerateKey creates a fresh secp256k1 keypair. One keypair is used for an
// entire mining run; the nonce alone varies per attempt.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethCrypto.S256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating secp256k1 key")
	}

	return key, nil
}

// Mine generates a keypair and searches for a nonce whose node id reaches
// target leading zero bits, returning the complete identity record.
func Mine(ctx context.Context, target int, opts ...pow.MinerOption) (*Identity, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	pub := ethCrypto.CompressPubkey(&key.PublicKey)

	res, err := pow.NewMiner(opts...).Mine(ctx, pub, target)
	if err != nil {
		return nil, errors.Wrap(err, "searching nonce space")
	}

	return &Identity{
		NodeID:     res.NodeID.String(),
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(ethCrypto.FromECDSA(key)),
		Nonce:      res.Nonce,
		Difficulty: res.Difficulty,
		MinedAt:    time.Now().UTC(),
	}, nil
}
