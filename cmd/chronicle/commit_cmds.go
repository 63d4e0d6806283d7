package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo-chronicle/chronicle/commit"
	"github.com/evalgo-chronicle/chronicle/config"
	"github.com/evalgo-chronicle/chronicle/db"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "snapshot the current database state into a content-addressed commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg := &config.Config{
			Service: config.LoadServiceConfig("CHRONICLE"),
			Storage: config.StorageConfig{Kind: "local", LocalPath: viper.GetString("local-path")},
		}
		handle, err := db.Open(ctx, cfg, db.Options{})
		if err != nil {
			return err
		}
		defer handle.Dispose(ctx)

		message, _ := cmd.Flags().GetString("message")
		author, _ := cmd.Flags().GetString("author")
		parent, _ := cmd.Flags().GetString("parent")

		var parents []string
		if parent != "" {
			parents = strings.Split(parent, ",")
		}

		position := commit.EventLogPosition{Offset: len(handle.Events.PendingSnapshot())}
		state, err := commit.BuildDatabaseState(ctx, handle.Entities, position)
		if err != nil {
			return err
		}

		c, err := commit.CreateCommit(state, commit.CreateOptions{
			Message: message,
			Author:  author,
			Parents: parents,
		}, time.Now().Unix())
		if err != nil {
			return err
		}

		if err := commit.SaveCommit(ctx, handle.Backend, c); err != nil {
			return err
		}
		fmt.Println(c.Hash)
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log <hash>",
	Short: "walk a commit's first-parent history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		backend, err := openLocalBackend()
		if err != nil {
			return err
		}

		hash := args[0]
		for hash != "" {
			c, err := commit.LoadCommit(ctx, backend, hash)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  %s\n", c.Hash[:12], c.Author, c.Message)

			if len(c.Parents) == 0 {
				break
			}
			hash = c.Parents[0]
		}
		return nil
	},
}

func init() {
	commitCmd.Flags().String("message", "", "commit message")
	commitCmd.Flags().String("author", "", "commit author (defaults to \"anonymous\")")
	commitCmd.Flags().String("parent", "", "comma-separated parent hash(es)")
	commitCmd.MarkFlagRequired("message")

	_ = viper.BindPFlag("commit.message", commitCmd.Flags().Lookup("message"))
}
