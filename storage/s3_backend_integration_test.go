//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioAccessKey = "minioadmin"
	minioSecretKey = "minioadmin"
	minioBucket    = "chronicle-test"
)

// startMinIO brings up a disposable MinIO container and returns an
// S3Backend rooted at a freshly created bucket in it.
func startMinIO(t *testing.T) *S3Backend {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioAccessKey,
			"MINIO_ROOT_PASSWORD": minioSecretKey,
		},
		Cmd: []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	endpoint := fmt.Sprintf("http://%s:%s", host, port.Port())

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(minioAccessKey, minioSecretKey, "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(minioBucket)})
	require.NoError(t, err)

	return NewS3BackendWithClient(client, minioBucket, "")
}

func TestS3BackendAgainstMinIO(t *testing.T) {
	backend := startMinIO(t)
	ctx := context.Background()

	_, err := backend.Write(ctx, "events/seg-0001.parquet", []byte("columnar payload"), WriteOptions{})
	require.NoError(t, err)

	data, err := backend.Read(ctx, "events/seg-0001.parquet")
	require.NoError(t, err)
	require.Equal(t, []byte("columnar payload"), data)

	st, err := backend.Stat(ctx, "events/seg-0001.parquet")
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, int64(len(data)), st.Size)

	res, err := backend.List(ctx, "events/", ListOptions{})
	require.NoError(t, err)
	require.Contains(t, res.Files, "events/seg-0001.parquet")

	require.NoError(t, backend.Delete(ctx, "events/seg-0001.parquet"))
	ok, err := backend.Exists(ctx, "events/seg-0001.parquet")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestS3BackendConditionalWriteAgainstMinIO(t *testing.T) {
	backend := startMinIO(t)
	ctx := context.Background()

	_, err := backend.Write(ctx, "once.txt", []byte("v1"), WriteOptions{IfNoneMatch: "*"})
	require.NoError(t, err)

	_, err = backend.Write(ctx, "once.txt", []byte("v2"), WriteOptions{IfNoneMatch: "*"})
	require.Error(t, err)
}
