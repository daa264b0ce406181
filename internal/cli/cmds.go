package cli

func regCommands() {
	//Identity
	identityCmd.AddCommand(identity_mineCmd)
	identityCmd.AddCommand(identity_registerCmd)
	identityCmd.AddCommand(identity_verifyCmd)
	identityCmd.AddCommand(identity_statusCmd)
	identityCmd.AddCommand(identity_listCmd)

	//Root
	rootCmd.AddCommand(identityCmd)
}
