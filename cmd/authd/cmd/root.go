package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "authd",
	Short: "authd is a session and token lifecycle service",
	Long: `An authentication service providing login, refresh-token and password
reset flows over HTTP, backed by MongoDB or a JSON flat file.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
