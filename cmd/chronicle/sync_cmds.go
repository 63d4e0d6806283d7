package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	csync "github.com/evalgo-chronicle/chronicle/sync"
)

func newEngine(ctx context.Context) (*csync.Engine, error) {
	local, err := openLocalBackend()
	if err != nil {
		return nil, err
	}
	remote, err := openRemoteBackend(ctx)
	if err != nil {
		return nil, err
	}
	owner, _ := os.Hostname()
	if owner == "" {
		owner = "chronicle-cli"
	}
	return csync.New(local, remote, viper.GetString("database-id"), owner), nil
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "upload local-only and newer files to the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")

		res, err := eng.Push(ctx, csync.PushOptions{
			DryRun:   dryRun,
			Progress: progressFunc(verbose),
		})
		if err != nil {
			return err
		}
		printResult(res, dryRun)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "download remote-only and newer files to local",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")

		res, err := eng.Pull(ctx, csync.PullOptions{
			DryRun:   dryRun,
			Progress: progressFunc(verbose),
		})
		if err != nil {
			return err
		}
		if !res.Success {
			fmt.Println("remote has no manifest yet; nothing to pull")
			return nil
		}
		printResult(res, dryRun)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "reconcile local and remote, resolving conflicts per --strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")
		strategy, _ := cmd.Flags().GetString("strategy")

		res, err := eng.Sync(ctx, csync.SyncOptions{
			Strategy: csync.ConflictStrategy(strategy),
			DryRun:   dryRun,
			Progress: progressFunc(verbose),
		})
		if err != nil {
			return err
		}
		printResult(res, dryRun)
		if len(res.ConflictsPending) > 0 {
			fmt.Printf("%d conflict(s) left unresolved (strategy=%s):\n", len(res.ConflictsPending), strategy)
			for _, p := range res.ConflictsPending {
				fmt.Println("  ", p)
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pushCmd, pullCmd, syncCmd} {
		c.Flags().Bool("dry-run", false, "compute the diff and report it without transferring any file")
		c.Flags().Bool("verbose", false, "print per-file progress")
	}
	syncCmd.Flags().String("strategy", string(csync.Newest), "conflict strategy: local-wins, remote-wins, newest, manual")
}

func progressFunc(verbose bool) csync.ProgressFunc {
	if !verbose {
		return nil
	}
	return func(ev csync.ProgressEvent) { printProgress(ev) }
}

func printResult(res csync.Result, dryRun bool) {
	if dryRun {
		fmt.Printf("dry run: would upload %d, download %d, leave %d conflict(s) pending\n",
			len(res.Diff.ToUpload), len(res.Diff.ToDownload), len(res.Diff.Conflicts))
		return
	}
	fmt.Printf("uploaded %d, downloaded %d\n", len(res.Uploaded), len(res.Downloaded))
	for _, fe := range res.Errors {
		fmt.Printf("  error: %s %s: %v\n", fe.Operation, fe.Path, fe.Err)
	}
}
