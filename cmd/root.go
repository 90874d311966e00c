package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "credits",
	Short: "Credit fulfillment microservice",
	Long:  "A credit fulfillment microservice that turns paid billing-provider orders into exactly-once credit grants.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
