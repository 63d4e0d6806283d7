package storage

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// mockS3Object is a mock S3 object's content and metadata.
type mockS3Object struct {
	content  string
	metadata map[string]string
}

// mockS3Client is an in-memory S3Client used to exercise S3Backend
// without a live bucket.
type mockS3Client struct {
	objects map[string]*mockS3Object
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string]*mockS3Object)}
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return &s3.CreateBucketOutput{}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	obj := &mockS3Object{content: string(data)}
	if params.Metadata != nil {
		obj.metadata = params.Metadata
	}
	m.objects[*params.Key] = obj
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := ""
	if params.Prefix != nil {
		prefix = *params.Prefix
	}
	var contents []types.Object
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			contents = append(contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(obj.content)))})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := m.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	content := obj.content
	if params.Range != nil {
		content = applyRangeHeader(content, *params.Range)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(content)), Metadata: obj.metadata}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := m.objects[*params.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	etag := "mock-etag"
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.content))),
		Metadata:      obj.metadata,
		ETag:          &etag,
	}, nil
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	src := *params.CopySource
	if idx := strings.Index(src, "/"); idx >= 0 {
		src = src[idx+1:]
	}
	obj, ok := m.objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	m.objects[*params.Key] = &mockS3Object{content: obj.content, metadata: obj.metadata}
	return &s3.CopyObjectOutput{}, nil
}

// applyRangeHeader applies a "bytes=start-end" header to content, mirroring
// the subset of HTTP range semantics S3Backend.ReadRange relies on.
func applyRangeHeader(content, rangeHeader string) string {
	rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.SplitN(rangeHeader, "-", 2)
	if len(parts) != 2 {
		return content
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return content
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return content
	}
	if start < 0 || start > len(content) {
		return ""
	}
	if end+1 > len(content) {
		end = len(content) - 1
	}
	if end < start {
		return ""
	}
	return content[start : end+1]
}
