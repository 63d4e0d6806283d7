package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo-chronicle/chronicle/config"
	"github.com/evalgo-chronicle/chronicle/db"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "open (creating if necessary) the local database directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Service: config.LoadServiceConfig("CHRONICLE"),
			Storage: config.StorageConfig{Kind: "local", LocalPath: viper.GetString("local-path")},
		}

		handle, err := db.Open(context.Background(), cfg, db.Options{})
		if err != nil {
			return err
		}
		defer handle.Dispose(context.Background())

		fmt.Printf("opened database at %s\n", viper.GetString("local-path"))
		return nil
	},
}
