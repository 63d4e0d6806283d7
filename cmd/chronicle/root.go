// Command chronicle is the reference CLI over the embeddable database:
// open a local database, push/pull/sync it against a remote backend, and
// inspect its commit history. It is a thin adapter — every operation it
// exposes is a direct call into the library packages, never its own
// business logic — built in the shape of cli/root.go's cobra+viper
// wiring, generalized from one HTTP service command to several
// subcommands over a shared persistent config.
package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfgFile holds the path given via --config; when empty, initConfig
// searches $HOME/.chronicle.yaml then ./.chronicle.yaml.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "open, push, pull, sync and inspect a chronicle database",
	Long: `chronicle is the reference command-line adapter over the embeddable
event-sourced database: it opens a local database directory, synchronizes
it against a remote storage backend, and walks the commit history.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.chronicle.yaml)")
	rootCmd.PersistentFlags().String("local-path", "./chronicle-data", "local database directory")
	rootCmd.PersistentFlags().String("database-id", "default", "database identifier used for lock and manifest paths")

	rootCmd.PersistentFlags().String("remote-kind", "", "remote backend kind: s3, local, http (empty disables sync commands)")
	rootCmd.PersistentFlags().String("remote-path", "", "remote local-backend directory, when remote-kind=local")
	rootCmd.PersistentFlags().String("s3-bucket", "", "remote S3 bucket, when remote-kind=s3")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "remote S3 region")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "remote S3-compatible endpoint (MinIO, etc.)")
	rootCmd.PersistentFlags().String("s3-prefix", "", "remote S3 key prefix")
	rootCmd.PersistentFlags().String("http-url", "", "remote read-only HTTP base URL, when remote-kind=http")
	rootCmd.PersistentFlags().String("http-token", "", "bearer token for remote-kind=http")

	for _, name := range []string{
		"local-path", "database-id",
		"remote-kind", "remote-path",
		"s3-bucket", "s3-region", "s3-endpoint", "s3-prefix",
		"http-url", "http-token",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(openCmd, pushCmd, pullCmd, syncCmd, commitCmd, logCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".chronicle")
	}

	viper.SetEnvPrefix("CHRONICLE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
