package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrRegistryNotConfigured = errors.New("registry not configured for network")
	ErrNotFound              = errors.New("identity not registered")
	ErrStakeBelowMinimum     = errors.New("stake below role minimum")
)

// InsufficientBalanceError is raised before any transaction is issued when
// the operator's token balance cannot cover the requested stake.
type InsufficientBalanceError struct {
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s, have %s", e.Required, e.Available)
}

// TransactionFailedError reports a mined transaction whose receipt was not
// successful. It is never retried automatically.
type TransactionFailedError struct {
	Op   string
	Hash common.Hash
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s transaction %s failed on chain", e.Op, e.Hash.Hex())
}
