package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rootCmd = &cobra.Command{
		Use:   "dwsctl",
		Short: "Operate a node on the decentralized services network",
	}
)

func Execute() error {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase verbosity")
	rootCmd.PersistentFlags().String("network", "testnet", "target network")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("network", rootCmd.PersistentFlags().Lookup("network"))

	regCommands()

	return rootCmd.Execute()
}
