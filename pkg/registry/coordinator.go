package registry

import (
	"context"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dwsnet/dwsctl/pkg/identity"
	"github.com/dwsnet/dwsctl/pkg/pow"
)

// Request describes a registration to perform.
type Request struct {
	Identity *identity.Identity
	Role     Role
	Endpoint string

	// Stake is the token amount to lock. Nil uses the role minimum.
	Stake *big.Int
}

// Coordinator runs the registration protocol: local proof gate, balance and
// allowance checks, at most one approval, then the registration itself.
type Coordinator struct {
	chain Chain
	log   *logrus.Entry
}

type CoordinatorOption func(*Coordinator)

func WithLogger(l *logrus.Entry) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = l
	}
}

func NewCoordinator(chain Chain, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		chain: chain,
		log:   logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register drives the sequential registration protocol. Each step may abort
// the remainder; no transaction is ever retried automatically.
func (c *Coordinator) Register(ctx context.Context, req *Request) (common.Hash, error) {
	// Pre-flight proof gate, before any network I/O or gas is spent.
	if err := req.Identity.CheckProof(); err != nil {
		return common.Hash{}, err
	}

	publicKey, _ := hex.DecodeString(req.Identity.PublicKey)
	nodeID, _ := pow.NodeIDFromHex(req.Identity.NodeID)

	token, err := c.chain.StakingToken(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	min, err := c.chain.MinStake(ctx, req.Role)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "resolving %s minimum stake", req.Role)
	}

	stake := req.Stake
	if stake == nil || stake.Sign() == 0 {
		stake = min
	} else if stake.Cmp(min) < 0 {
		return common.Hash{}, errors.Wrapf(ErrStakeBelowMinimum, "%s < %s for %s", stake, min, req.Role)
	}

	operator := c.chain.Operator()

	balance, err := c.chain.BalanceOf(ctx, token, operator)
	if err != nil {
		return common.Hash{}, err
	}
	if balance.Cmp(stake) < 0 {
		return common.Hash{}, &InsufficientBalanceError{Required: stake, Available: balance}
	}

	if err := c.ensureAllowance(ctx, token, operator, stake); err != nil {
		return common.Hash{}, err
	}

	c.log.WithFields(logrus.Fields{
		"nodeId":   req.Identity.NodeID,
		"role":     req.Role.String(),
		"endpoint": req.Endpoint,
		"stake":    stake.String(),
	}).Info("submitting registration")

	tx, err := c.chain.RegisterIdentity(ctx, publicKey, req.Identity.Nonce, nodeID, req.Role, req.Endpoint, stake)
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := c.chain.WaitMined(ctx, tx)
	if err != nil {
		return tx, errors.Wrap(err, "waiting for registration receipt")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx, &TransactionFailedError{Op: "register", Hash: tx}
	}

	return tx, nil
}

// ensureAllowance approves the registry for exactly the stake amount, and
// only when the current allowance does not already cover it.
func (c *Coordinator) ensureAllowance(ctx context.Context, token, operator common.Address, stake *big.Int) error {
	allowance, err := c.chain.Allowance(ctx, token, operator)
	if err != nil {
		return err
	}

	if allowance.Cmp(stake) >= 0 {
		c.log.WithField("allowance", allowance.String()).Debug("allowance already covers stake")
		return nil
	}

	tx, err := c.chain.Approve(ctx, token, stake)
	if err != nil {
		return err
	}

	c.log.WithField("tx", tx.Hex()).Info("waiting for approval")

	receipt, err := c.chain.WaitMined(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "waiting for approval receipt")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &TransactionFailedError{Op: "approve", Hash: tx}
	}

	return nil
}

// VerifyResult is the outcome of checking a registered identity.
type VerifyResult struct {
	Record     *Record
	Computed   pow.NodeID
	Difficulty int
	LocalValid bool
	ChainValid bool
}

// Verify reads a node's on-chain record and re-checks its proof of work
// locally, alongside the registry's own view. An absent record surfaces as
// ErrNotFound.
func (c *Coordinator) Verify(ctx context.Context, nodeID pow.NodeID) (*VerifyResult, error) {
	rec, err := c.chain.Identity(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	computed := pow.ComputeNodeID(rec.PublicKey, rec.Nonce)

	chainValid, err := c.chain.VerifyIdentity(ctx, rec.PublicKey, rec.Nonce, nodeID)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Record:     rec,
		Computed:   computed,
		Difficulty: computed.Difficulty(),
		LocalValid: computed == nodeID,
		ChainValid: chainValid,
	}, nil
}

// Status reports a node's on-chain record together with the operator's
// current token balance.
func (c *Coordinator) Status(ctx context.Context, nodeID pow.NodeID) (*Record, *big.Int, error) {
	rec, err := c.chain.Identity(ctx, nodeID)
	if err != nil {
		return nil, nil, err
	}

	token, err := c.chain.StakingToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	balance, err := c.chain.BalanceOf(ctx, token, c.chain.Operator())
	if err != nil {
		return nil, nil, err
	}

	return rec, balance, nil
}
