package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upsync-dev/upsync/cmd/bench"
	"github.com/upsync-dev/upsync/cmd/demo"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "upsync",
		Short: "coalescing update schedulers and a one-to-many lock",
		Long: fmt.Sprintf(`upsync (v%s)

A library of low-level concurrency primitives: a dual-mode lock admitting
either one exclusive holder or many concurrent holders, and a family of
debounced, coalescing update schedulers with dedicated background goroutines.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of upsync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("upsync v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(demo.DemoCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
