package config

import (
	"encoding/base64"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/vmihailenco/msgpack/v5"
)

// Network is a chain the registry is deployed to.
type Network struct {
	Name     string `msgpack:"name"`
	RPCURL   string `msgpack:"rpc"`
	Registry string `msgpack:"registry"`
}

// Chain holds the network and key material locations used by the
// registration commands.
type Chain struct {
	Network  Network
	KeyFile  string
	Keystore string
}

const (
	Cfg_chain_network  = "network"
	Cfg_chain_networks = "chain.networks"
	Cfg_chain_rpc      = "chain.rpc"
	Cfg_chain_registry = "chain.registry"
	Cfg_chain_keyFile  = "chain.key_file"
	Cfg_chain_keystore = "chain.keystore"
)

var builtinNetworks = map[string]Network{
	"testnet": {
		Name:     "testnet",
		RPCURL:   "https://rpc.testnet.dws.net",
		Registry: "0x8bF2b3C1E3F69d44cE9b4f1A80b1c9f6cBb7E5D0",
	},
	"mainnet": {
		Name:     "mainnet",
		RPCURL:   "https://rpc.dws.net",
		Registry: "0x4E21aD98F5CF0C8e8dF3A2b14E9d05d7705A9d31",
	},
}

func buildChainConfig() (*Chain, error) {
	networks := make(map[string]Network, len(builtinNetworks))
	for k, v := range builtinNetworks {
		networks[k] = v
	}

	// Operators can carry extra networks as a base64 msgpack blob.
	if ncfg := viper.GetString(Cfg_chain_networks); ncfg != "" {
		raw, err := base64.StdEncoding.DecodeString(ncfg)
		if err != nil {
			return nil, errors.Wrap(err, "b64 decoding networks config")
		}

		var extra []Network
		if err := msgpack.Unmarshal(raw, &extra); err != nil {
			return nil, errors.Wrap(err, "unmarshaling networks config")
		}

		for _, n := range extra {
			networks[n.Name] = n
		}
	}

	name := viper.GetString(Cfg_chain_network)
	net, ok := networks[name]
	if !ok {
		net = Network{Name: name}
	}

	if rpc := viper.GetString(Cfg_chain_rpc); rpc != "" {
		net.RPCURL = rpc
	}
	if reg := viper.GetString(Cfg_chain_registry); reg != "" {
		net.Registry = reg
	}

	c := &Chain{
		Network:  net,
		KeyFile:  viper.GetString(Cfg_chain_keyFile),
		Keystore: viper.GetString(Cfg_chain_keystore),
	}

	if c.KeyFile == "" {
		c.KeyFile = homePath("operator.key")
	}
	if c.Keystore == "" {
		c.Keystore = homePath("identity.yaml")
	}

	return c, nil
}
