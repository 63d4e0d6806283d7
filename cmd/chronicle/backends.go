package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/storage"
)

func openLocalBackend() (storage.Backend, error) {
	return storage.NewLocalBackend(viper.GetString("local-path"))
}

// openRemoteBackend builds the remote side of push/pull/sync from the
// bound --remote-* flags. Every sync command requires one; a missing
// remote-kind is a usage error, not a silent local-only fallback.
func openRemoteBackend(ctx context.Context) (storage.Backend, error) {
	switch kind := viper.GetString("remote-kind"); kind {
	case "s3":
		return storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:   viper.GetString("s3-bucket"),
			Prefix:   viper.GetString("s3-prefix"),
			Endpoint: viper.GetString("s3-endpoint"),
			Region:   viper.GetString("s3-region"),
		})
	case "local":
		return storage.NewLocalBackend(viper.GetString("remote-path"))
	case "http":
		return storage.NewHTTPReadOnlyBackend(viper.GetString("http-url"), viper.GetString("http-token")), nil
	case "":
		return nil, cherrors.New(cherrors.Validation, "--remote-kind is required for this command")
	default:
		return nil, cherrors.Newf(cherrors.Validation, "unknown remote-kind %q", kind)
	}
}

func printProgress(ev fmt.Stringer) {
	fmt.Println(ev.String())
}
