// Package registry drives funded on-chain registration of mined node
// identities and the reads needed to verify them.
package registry

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/dwsnet/dwsctl/pkg/pow"
)

// ABI surfaces consumed from the identity registry and its staking token.
// The registry's internals are external; only these entry points are used.
const (
	registryABI = `[
		{"type":"function","name":"stakingToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"MIN_BP_STAKE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"MIN_MINER_STAKE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"registerIdentity","stateMutability":"nonpayable","inputs":[{"name":"publicKey","type":"bytes"},{"name":"nonce","type":"uint64[4]"},{"name":"nodeId","type":"bytes32"},{"name":"role","type":"uint8"},{"name":"endpoint","type":"string"},{"name":"stakeAmount","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"verifyIdentity","stateMutability":"view","inputs":[{"name":"publicKey","type":"bytes"},{"name":"nonce","type":"uint64[4]"},{"name":"nodeId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"getIdentity","stateMutability":"view","inputs":[{"name":"nodeId","type":"bytes32"}],"outputs":[{"name":"owner","type":"address"},{"name":"publicKey","type":"bytes"},{"name":"nonce","type":"uint64[4]"},{"name":"role","type":"uint8"},{"name":"endpoint","type":"string"},{"name":"stakeAmount","type":"uint256"},{"name":"registeredAt","type":"uint64"}]}
	]`

	erc20ABI = `[
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`
)

// Record is an identity as stored by the registry contract.
type Record struct {
	Owner        common.Address
	PublicKey    []byte
	Nonce        pow.Nonce
	Role         Role
	Endpoint     string
	Stake        *big.Int
	RegisteredAt time.Time
}

// Chain is the on-chain surface the coordinator drives. The staking token's
// spender is always the registry, so allowance and approve leave it implicit.
type Chain interface {
	Operator() common.Address
	StakingToken(ctx context.Context) (common.Address, error)
	MinStake(ctx context.Context, role Role) (*big.Int, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Approve(ctx context.Context, token common.Address, amount *big.Int) (common.Hash, error)
	RegisterIdentity(ctx context.Context, publicKey []byte, nonce pow.Nonce, nodeID pow.NodeID, role Role, endpoint string, stake *big.Int) (common.Hash, error)
	Identity(ctx context.Context, nodeID pow.NodeID) (*Record, error)
	VerifyIdentity(ctx context.Context, publicKey []byte, nonce pow.Nonce, nodeID pow.NodeID) (bool, error)
	WaitMined(ctx context.Context, tx common.Hash) (*types.Receipt, error)
}

var _ Chain = (*Client)(nil)

// Client implements Chain over a JSON-RPC endpoint.
type Client struct {
	eth          *ethclient.Client
	registry     *bind.BoundContract
	registryAddr common.Address
	tokenABI     abi.ABI
	signer       *bind.TransactOpts
	operator     common.Address
}

// Dial connects to rpcURL and binds the registry contract, signing
// transactions with operatorKey.
func Dial(ctx context.Context, rpcURL string, registryAddr common.Address, operatorKey *ecdsa.PrivateKey) (*Client, error) {
	if (registryAddr == common.Address{}) {
		return nil, errors.Wrap(ErrRegistryNotConfigured, "no registry address")
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing rpc endpoint")
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving chain id")
	}

	signer, err := bind.NewKeyedTransactorWithChainID(operatorKey, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "building transactor")
	}

	regABI, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, errors.Wrap(err, "parsing registry abi")
	}

	tokABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parsing token abi")
	}

	return &Client{
		eth:          eth,
		registry:     bind.NewBoundContract(registryAddr, regABI, eth, eth, eth),
		registryAddr: registryAddr,
		tokenABI:     tokABI,
		signer:       signer,
		operator:     ethCrypto.PubkeyToAddress(operatorKey.PublicKey),
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) Operator() common.Address {
	return c.operator
}

func (c *Client) RegistryAddress() common.Address {
	return c.registryAddr
}

func (c *Client) token(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, c.tokenABI, c.eth, c.eth, c.eth)
}

func (c *Client) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.signer
	opts.Context = ctx
	return &opts
}

func (c *Client) StakingToken(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.registry.Call(&bind.CallOpts{Context: ctx}, &out, "stakingToken"); err != nil {
		return common.Address{}, errors.Wrap(err, "reading staking token")
	}

	addr := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if (addr == common.Address{}) {
		return common.Address{}, errors.Wrap(ErrRegistryNotConfigured, "staking token unresolved")
	}

	return addr, nil
}

func (c *Client) MinStake(ctx context.Context, role Role) (*big.Int, error) {
	method := "MIN_MINER_STAKE"
	if role == RoleBlockProducer {
		method = "MIN_BP_STAKE"
	}

	var out []interface{}
	if err := c.registry.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return nil, errors.Wrapf(err, "reading %s", method)
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return nil, errors.Wrap(err, "reading token balance")
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, c.registryAddr); err != nil {
		return nil, errors.Wrap(err, "reading allowance")
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) Approve(ctx context.Context, token common.Address, amount *big.Int) (common.Hash, error) {
	tx, err := c.token(token).Transact(c.transactOpts(ctx), "approve", c.registryAddr, amount)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "submitting approval")
	}

	return tx.Hash(), nil
}

func (c *Client) RegisterIdentity(ctx context.Context, publicKey []byte, nonce pow.Nonce, nodeID pow.NodeID, role Role, endpoint string, stake *big.Int) (common.Hash, error) {
	tx, err := c.registry.Transact(c.transactOpts(ctx), "registerIdentity",
		publicKey, wireNonce(nonce), [32]byte(nodeID), uint8(role), endpoint, stake)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "submitting registration")
	}

	return tx.Hash(), nil
}

func (c *Client) Identity(ctx context.Context, nodeID pow.NodeID) (*Record, error) {
	var out []interface{}
	if err := c.registry.Call(&bind.CallOpts{Context: ctx}, &out, "getIdentity", [32]byte(nodeID)); err != nil {
		return nil, errors.Wrap(err, "reading identity record")
	}

	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if (owner == common.Address{}) {
		return nil, ErrNotFound
	}

	nonce := *abi.ConvertType(out[2], new([4]uint64)).(*[4]uint64)
	registeredAt := *abi.ConvertType(out[6], new(uint64)).(*uint64)

	return &Record{
		Owner:        owner,
		PublicKey:    *abi.ConvertType(out[1], new([]byte)).(*[]byte),
		Nonce:        pow.Nonce{A: nonce[0], B: nonce[1], C: nonce[2], D: nonce[3]},
		Role:         Role(*abi.ConvertType(out[3], new(uint8)).(*uint8)),
		Endpoint:     *abi.ConvertType(out[4], new(string)).(*string),
		Stake:        *abi.ConvertType(out[5], new(*big.Int)).(**big.Int),
		RegisteredAt: time.Unix(int64(registeredAt), 0).UTC(),
	}, nil
}

func (c *Client) VerifyIdentity(ctx context.Context, publicKey []byte, nonce pow.Nonce, nodeID pow.NodeID) (bool, error) {
	var out []interface{}
	if err := c.registry.Call(&bind.CallOpts{Context: ctx}, &out, "verifyIdentity", publicKey, wireNonce(nonce), [32]byte(nodeID)); err != nil {
		return false, errors.Wrap(err, "calling verifyIdentity")
	}

	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// WaitMined polls for the transaction receipt with jittered backoff. Any
// timeout policy is the caller's, imposed through ctx.
func (c *Client) WaitMined(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: true,
	}

	for {
		r, err := c.eth.TransactionReceipt(ctx, tx)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "polling receipt")
		}

		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func wireNonce(n pow.Nonce) [4]uint64 {
	return [4]uint64{n.A, n.B, n.C, n.D}
}
