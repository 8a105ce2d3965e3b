package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// By default, it sets `GOMEMLIMIT` to 90% of cgroup's memory limit.
	_ "github.com/KimMachineGun/automemlimit"
)

var Version = "v0.0.0"

var configFile string

func main() {
	root := &cobra.Command{
		Use:     "transferd",
		Short:   "Shipboard data transfer orchestration daemon",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")

	root.AddCommand(serveCommand(), migrateCommand(), serviceCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeInstance, err := openStore()
			if err != nil {
				return err
			}
			defer storeInstance.Close()
			fmt.Println("database is up to date")
			return nil
		},
	}
}
