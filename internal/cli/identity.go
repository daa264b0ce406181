package cli

import (
	"context"
	"fmt"
	"io/ioutil"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwsnet/dwsctl/internal/config"
	"github.com/dwsnet/dwsctl/internal/utils/logging"
	"github.com/dwsnet/dwsctl/pkg/identity"
	"github.com/dwsnet/dwsctl/pkg/pow"
	"github.com/dwsnet/dwsctl/pkg/registry"
)

var (
	identityCmd = &cobra.Command{
		Use:   "identity",
		Short: "Node identity commands",
	}

	identity_mineCmd = &cobra.Command{
		Use:   "mine",
		Short: "mine a new node identity",
		RunE:  runIdentityMine,
	}

	identity_registerCmd = &cobra.Command{
		Use:   "register",
		Short: "register a mined identity on chain",
		RunE:  runIdentityRegister,
	}

	identity_verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "re-check a registered identity's proof of work",
		RunE:  runIdentityVerify,
	}

	identity_statusCmd = &cobra.Command{
		Use:   "status",
		Short: "show a registered identity and the operator balance",
		RunE:  runIdentityStatus,
	}

	identity_listCmd = &cobra.Command{
		Use:   "list",
		Short: "list locally stored identities",
		RunE:  runIdentityList,
	}
)

func init() {
	identity_mineCmd.Flags().IntP("difficulty", "d", 24, "target leading zero bits")
	identity_mineCmd.Flags().IntP("workers", "w", 0, "search workers. 0 uses all CPUs")
	identity_mineCmd.Flags().StringP("out", "o", "", "also write the record to a standalone file")

	identity_registerCmd.Flags().String("node-id", "", "identity to register")
	identity_registerCmd.Flags().String("role", "miner", "on-chain role: bp or miner")
	identity_registerCmd.Flags().StringP("endpoint", "e", "", "publicly reachable service endpoint")
	identity_registerCmd.Flags().String("stake", "", "stake in base token units. blank uses the role minimum")
	identity_registerCmd.MarkFlagRequired("node-id")
	identity_registerCmd.MarkFlagRequired("endpoint")

	identity_verifyCmd.Flags().String("node-id", "", "identity to verify")
	identity_verifyCmd.MarkFlagRequired("node-id")

	identity_statusCmd.Flags().String("node-id", "", "identity to look up")
	identity_statusCmd.MarkFlagRequired("node-id")
}

func runIdentityMine(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	target, _ := cmd.Flags().GetInt("difficulty")
	workers, _ := cmd.Flags().GetInt("workers")
	out, _ := cmd.Flags().GetString("out")

	opts := []pow.MinerOption{
		pow.WithProgress(func(p pow.Progress) {
			logging.WithFields(logging.Fields{
				"attempts": p.Attempts,
				"best":     p.BestDifficulty,
				"elapsed":  p.Elapsed.Round(time.Millisecond).String(),
				"hashRate": fmt.Sprintf("%.0f/s", p.HashRate),
			}).Info("new best")
		}),
	}
	if workers > 0 {
		opts = append(opts, pow.WithWorkers(workers))
	}

	logging.WithFields(logging.Fields{"target": target}).Info("mining node identity")

	id, err := identity.Mine(ctx, target, opts...)
	if err != nil {
		return errors.Wrap(err, "mining identity")
	}

	store, err := identity.NewStore(cfg.Chain().Keystore)
	if err != nil {
		return err
	}
	if err := store.Add(id); err != nil {
		return errors.Wrap(err, "persisting identity")
	}

	if out != "" {
		if err := writeRecord(out, id); err != nil {
			return err
		}
	}

	fmt.Printf("nodeId:     %s\n", id.NodeID)
	fmt.Printf("publicKey:  %s\n", id.PublicKey)
	fmt.Printf("difficulty: %d\n", id.Difficulty)
	fmt.Printf("minedAt:    %s\n", id.MinedAt.Format(time.RFC3339))

	return nil
}

func runIdentityRegister(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	nodeID, _ := cmd.Flags().GetString("node-id")
	roleStr, _ := cmd.Flags().GetString("role")
	endpoint, _ := cmd.Flags().GetString("endpoint")
	stakeStr, _ := cmd.Flags().GetString("stake")

	role, err := registry.ParseRole(roleStr)
	if err != nil {
		return err
	}

	var stake *big.Int
	if stakeStr != "" {
		var ok bool
		if stake, ok = new(big.Int).SetString(stakeStr, 10); !ok {
			return errors.Errorf("stake %q is not a decimal amount", stakeStr)
		}
	}

	store, err := identity.NewStore(cfg.Chain().Keystore)
	if err != nil {
		return err
	}

	id, err := store.Find(nodeID)
	if err != nil {
		return errors.Wrapf(err, "loading identity %s", nodeID)
	}

	// Local gate before any network I/O.
	if err := id.CheckProof(); err != nil {
		return err
	}

	client, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	coord := registry.NewCoordinator(client, registry.WithLogger(logging.Entry()))

	tx, err := coord.Register(ctx, &registry.Request{
		Identity: id,
		Role:     role,
		Endpoint: endpoint,
		Stake:    stake,
	})
	if err != nil {
		return err
	}

	fmt.Printf("registered %s as %s in tx %s\n", id.NodeID, role, tx.Hex())

	return nil
}

func runIdentityVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	nodeIDStr, _ := cmd.Flags().GetString("node-id")
	nodeID, err := pow.NodeIDFromHex(nodeIDStr)
	if err != nil {
		return errors.Wrap(err, "parsing node id")
	}

	client, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := registry.NewCoordinator(client).Verify(ctx, nodeID)
	if errors.Is(err, registry.ErrNotFound) {
		fmt.Printf("%s is not registered\n", nodeID)
		return nil
	} else if err != nil {
		return err
	}

	fmt.Printf("owner:      %s\n", res.Record.Owner.Hex())
	fmt.Printf("role:       %s\n", res.Record.Role)
	fmt.Printf("endpoint:   %s\n", res.Record.Endpoint)
	fmt.Printf("stake:      %s\n", res.Record.Stake)
	fmt.Printf("difficulty: %d\n", res.Difficulty)

	if !res.LocalValid {
		return errors.Wrapf(identity.ErrProofOfWorkMismatch, "record hashes to %s", res.Computed)
	}
	if !res.ChainValid {
		return errors.New("registry reports the identity as invalid")
	}

	fmt.Println("proof of work ok")

	return nil
}

func runIdentityStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	nodeIDStr, _ := cmd.Flags().GetString("node-id")
	nodeID, err := pow.NodeIDFromHex(nodeIDStr)
	if err != nil {
		return errors.Wrap(err, "parsing node id")
	}

	client, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	rec, balance, err := registry.NewCoordinator(client).Status(ctx, nodeID)
	if errors.Is(err, registry.ErrNotFound) {
		fmt.Printf("%s is not registered\n", nodeID)
		return nil
	} else if err != nil {
		return err
	}

	fmt.Printf("owner:        %s\n", rec.Owner.Hex())
	fmt.Printf("role:         %s\n", rec.Role)
	fmt.Printf("endpoint:     %s\n", rec.Endpoint)
	fmt.Printf("stake:        %s\n", rec.Stake)
	fmt.Printf("registeredAt: %s\n", rec.RegisteredAt.Format(time.RFC3339))
	fmt.Printf("balance:      %s\n", balance)

	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	store, err := identity.NewStore(cfg.Chain().Keystore)
	if err != nil {
		return err
	}

	for _, id := range store.List() {
		fmt.Printf("%s  difficulty=%d  minedAt=%s\n", id.NodeID, id.Difficulty, id.MinedAt.Format(time.RFC3339))
	}

	return nil
}

func dialChain(ctx context.Context, cfg *config.Config) (*registry.Client, error) {
	chain := cfg.Chain()

	if chain.Network.Registry == "" {
		return nil, errors.Wrapf(registry.ErrRegistryNotConfigured, "network %s", chain.Network.Name)
	}

	key, err := ethCrypto.LoadECDSA(chain.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "loading operator key")
	}

	return registry.Dial(ctx, chain.Network.RPCURL, common.HexToAddress(chain.Network.Registry), key)
}

func writeRecord(path string, id *identity.Identity) error {
	d, err := yaml.Marshal(id)
	if err != nil {
		return errors.Wrap(err, "marshalling identity record")
	}

	return ioutil.WriteFile(path, d, 0600)
}
