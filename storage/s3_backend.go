package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

// multipartThreshold is the size above which S3Backend routes writes
// through manager.Uploader instead of a single PutObject call.
const multipartThreshold = 16 << 20 // 16 MiB

// S3Backend is a Backend over an S3-compatible bucket. It is built on the
// same S3Client DI seam as the rest of this package (s3_interface.go) so
// tests can substitute a fake without a live bucket.
type S3Backend struct {
	client   S3Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// S3Config configures S3Backend construction.
type S3Config struct {
	Bucket          string
	Prefix          string // key prefix applied to every path
	Endpoint        string // non-empty for S3-compatible stores (MinIO, etc.)
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Backend builds an S3Backend from credentials, grounded on the
// connection-building pattern of storage/database.go's NewCouchDBClient.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, errNetwork(err.Error())
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})
	return NewS3BackendWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3BackendWithClient injects an S3Client, used by tests and by callers
// that already hold a configured client.
func NewS3BackendWithClient(client S3Client, bucket, prefix string) *S3Backend {
	b := &S3Backend{client: client, bucket: bucket, prefix: prefix}
	if real, ok := client.(*s3.Client); ok {
		b.uploader = manager.NewUploader(real)
	}
	return b
}

func (s *S3Backend) ReadOnly() bool { return false }

func (s *S3Backend) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + path
}

func (s *S3Backend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, translateS3Error(path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	return data, nil
}

func (s *S3Backend) ReadRange(ctx context.Context, path string, r ByteRange) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	size, err := s.sizeOf(ctx, path)
	if err != nil {
		return nil, err
	}
	start, end := r.Start, r.End
	if start < 0 {
		start = size + start
	}
	if end < 0 {
		end = size + end
	}
	if start < 0 || end < start {
		return nil, errValidation("invalid byte range", path)
	}
	if start >= end {
		return []byte{}, nil
	}
	if end > size {
		end = size
	}
	rangeHeader := httpRange(start, end)
	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key, Range: &rangeHeader})
	if err != nil {
		return nil, translateS3Error(path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	return data, nil
}

func (s *S3Backend) sizeOf(ctx context.Context, path string) (int64, error) {
	st, err := s.Stat(ctx, path)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, errNotFound(path)
	}
	return st.Size, nil
}

func (s *S3Backend) Stat(ctx context.Context, path string) (*Stat, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	key := s.key(path)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, nil
		}
		return nil, translateS3Error(path, err)
	}
	st := &Stat{}
	if out.ContentLength != nil {
		st.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		st.Mtime = *out.LastModified
	}
	if out.ETag != nil {
		st.Etag = strings.Trim(*out.ETag, `"`)
	}
	if out.ContentType != nil {
		st.ContentType = *out.ContentType
	}
	return st, nil
}

func (s *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	st, err := s.Stat(ctx, path)
	return st != nil, err
}

// Write uploads data. IfNoneMatch/IfMatch are checked with a Stat before
// the upload; no conditional request headers are sent, so the check is
// best-effort and not atomic with the write.
func (s *S3Backend) Write(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	if err := validatePath(path); err != nil {
		return WriteResult{}, err
	}
	if opts.IfNoneMatch == "*" || opts.IfMatch != "" {
		existing, err := s.Stat(ctx, path)
		if err != nil {
			return WriteResult{}, err
		}
		if opts.IfNoneMatch == "*" && existing != nil {
			return WriteResult{}, errConflict(path, "object already exists")
		}
		if opts.IfMatch != "" && (existing == nil || existing.Etag != opts.IfMatch) {
			return WriteResult{}, errConflict(path, "etag precondition failed")
		}
	}

	key := s.key(path)
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: bytes.NewReader(data)}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	if s.uploader != nil && int64(len(data)) > multipartThreshold {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: input.Bucket, Key: input.Key, Body: input.Body,
			ContentType: input.ContentType, Metadata: input.Metadata,
		})
		if err != nil {
			return WriteResult{}, errNetwork(err.Error())
		}
	} else {
		if _, err := s.client.PutObject(ctx, input); err != nil {
			return WriteResult{}, errNetwork(err.Error())
		}
	}

	st, err := s.Stat(ctx, path)
	if err != nil || st == nil {
		return WriteResult{Size: int64(len(data))}, nil
	}
	return WriteResult{Etag: st.Etag, Size: int64(len(data))}, nil
}

// WriteAtomic is identical to Write: S3's PutObject already replaces the
// object in a single request, so no reader ever observes partial content.
func (s *S3Backend) WriteAtomic(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	return s.Write(ctx, path, data, opts)
}

func (s *S3Backend) WriteConditional(ctx context.Context, path string, data []byte, expectedEtag string) (WriteResult, error) {
	existing, err := s.Stat(ctx, path)
	if err != nil {
		return WriteResult{}, err
	}
	if expectedEtag == "" {
		if existing != nil {
			return WriteResult{}, errConflict(path, "object already exists")
		}
	} else if existing == nil || existing.Etag != expectedEtag {
		return WriteResult{}, errConflict(path, "etag mismatch")
	}
	return s.Write(ctx, path, data, WriteOptions{})
}

func (s *S3Backend) Append(ctx context.Context, path string, data []byte) (int64, error) {
	existing, err := s.Read(ctx, path)
	if err != nil && cherrors.CodeOf(err) != cherrors.NotFound {
		return 0, err
	}
	combined := append(existing, data...)
	res, err := s.Write(ctx, path, combined, WriteOptions{})
	if err != nil {
		return 0, err
	}
	return res.Size, nil
}

func (s *S3Backend) Delete(ctx context.Context, path string) error {
	key := s.key(path)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return errNetwork(err.Error())
	}
	return nil
}

func (s *S3Backend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := s.List(ctx, prefix, ListOptions{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range res.Files {
		if err := s.Delete(ctx, p); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *S3Backend) List(ctx context.Context, prefix string, opts ListOptions) (ListResult, error) {
	key := s.key(prefix)
	input := &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &key}
	if opts.Delimiter != "" {
		input.Delimiter = &opts.Delimiter
	}
	if opts.Limit > 0 {
		limit := int32(opts.Limit)
		input.MaxKeys = &limit
	}
	if opts.Cursor != "" {
		input.ContinuationToken = &opts.Cursor
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ListResult{}, errNetwork(err.Error())
	}

	res := ListResult{}
	base := ""
	if s.prefix != "" {
		base = strings.TrimSuffix(s.prefix, "/") + "/"
	}
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		res.Files = append(res.Files, strings.TrimPrefix(*obj.Key, base))
	}
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix != nil {
			res.Prefixes = append(res.Prefixes, strings.TrimPrefix(*cp.Prefix, base))
		}
	}
	if out.IsTruncated != nil && *out.IsTruncated {
		res.HasMore = true
		if out.NextContinuationToken != nil {
			res.Cursor = *out.NextContinuationToken
		}
	}
	return res, nil
}

func (s *S3Backend) Mkdir(ctx context.Context, path string) error { return nil }

func (s *S3Backend) Rmdir(ctx context.Context, path string) error {
	_, err := s.DeletePrefix(ctx, path)
	return err
}

func (s *S3Backend) Copy(ctx context.Context, src, dst string) error {
	srcKey := s.bucket + "/" + s.key(src)
	dstKey := s.key(dst)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket: &s.bucket, Key: &dstKey, CopySource: &srcKey,
	})
	if err != nil {
		return errNetwork(err.Error())
	}
	return nil
}

func (s *S3Backend) Move(ctx context.Context, src, dst string) error {
	if err := s.Copy(ctx, src, dst); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}

func httpRange(start, end int64) string {
	return "bytes=" + itoa(start) + "-" + itoa(end-1)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func isNotFoundErr(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func translateS3Error(path string, err error) error {
	if isNotFoundErr(err) {
		return errNotFound(path)
	}
	return errNetwork(err.Error())
}
