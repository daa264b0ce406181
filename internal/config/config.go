package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	defaults = map[string]interface{}{
		"verbose": false,
		"network": "testnet",
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigName("dwsctl")
	viper.AddConfigPath("/etc/dwsctl/")
	viper.AddConfigPath("$HOME/.dwsctl")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("DWSCTL")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			logrus.New().Warnf("no config found")
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	c := &Config{}

	c.chain, err = buildChainConfig()
	if err != nil {
		return nil, errors.Wrap(err, "chain config")
	}

	if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.WithField("level", "debug").Debug("setting log level")
	}

	return c, nil
}

type Config struct {
	chain *Chain
}

func (c *Config) Chain() *Chain {
	return c.chain
}

// homePath builds a path under the user's dwsctl directory.
func homePath(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(append([]string{home, ".dwsctl"}, parts...)...)
}
