package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ignatij/shopfloor/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shopfloor",
	Short: "Job card sequencing and time tracking for production orders",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
