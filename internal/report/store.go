package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

const (
	// filePrefix starts every report filename.
	filePrefix = "session-"
	// s3Prefix is the key prefix for uploaded reports.
	s3Prefix = "sessions/"

	uploadTimeout  = 30000 * time.Millisecond
	cleanupTimeout = 5 * time.Minute
)

// ErrS3NotConfigured is returned when S3 storage is selected without credentials.
var ErrS3NotConfigured = errors.New("S3 is not configured")

// s3API is the subset of the S3 client used by Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// StoreConfig selects where summaries go.
type StoreConfig struct {
	Mode          types.StorageMode
	LocalPath     string
	S3            types.S3Config
	RetentionDays int
}

func (c *StoreConfig) local() bool {
	return c.Mode == types.StorageLocal || c.Mode == types.StorageBoth
}

func (c *StoreConfig) remote() bool {
	return c.Mode == types.StorageS3 || c.Mode == types.StorageBoth
}

// Store writes session summaries and enforces their retention.
type Store struct {
	cfg    StoreConfig
	client s3API
}

// SaveResult tells where a summary was written.
type SaveResult struct {
	LocalPath string `json:"local_path,omitempty"`
	S3Key     string `json:"s3_key,omitempty"`
}

// NewStore returns a store for cfg. The S3 client is created only when the
// mode needs it.
func NewStore(cfg StoreConfig) (*Store, error) {
	s := &Store{cfg: cfg}
	if cfg.remote() {
		if !cfg.S3.IsConfigured() {
			return nil, ErrS3NotConfigured
		}
		s.client = createS3Client(&cfg.S3)
	}
	return s, nil
}

// Filename returns the report filename for a session that started at t.
// The stamp is in UTC so retention compares like with like.
func Filename(t time.Time) string {
	return filePrefix + t.UTC().Format(util.FileTimeLayout) + ".json"
}

// S3Key returns the object key for a report filename.
func S3Key(filename string) string {
	return s3Prefix + filename
}

// Save writes sum to every configured destination. A failure in one
// destination does not prevent writing to the other.
func (s *Store) Save(ctx context.Context, sum *Summary) (SaveResult, error) {
	var result SaveResult
	if s.cfg.Mode == types.StorageNone {
		return result, nil
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return result, util.WrapError("marshal session summary", err)
	}
	name := Filename(sum.StartedAt)

	var errs []error
	if s.cfg.local() {
		p, err := s.saveLocal(name, data)
		if err != nil {
			errs = append(errs, err)
		} else {
			result.LocalPath = p
		}
	}
	if s.cfg.remote() {
		key, err := s.upload(ctx, name, data)
		if err != nil {
			errs = append(errs, err)
		} else {
			result.S3Key = key
		}
	}
	return result, errors.Join(errs...)
}

func (s *Store) saveLocal(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.cfg.LocalPath, 0o755); err != nil {
		return "", util.WrapError("create report directory", err)
	}
	p := filepath.Join(s.cfg.LocalPath, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", util.WrapError("write session report", err)
	}
	slog.Info("session report saved", "path", p)
	return p, nil
}

func (s *Store) upload(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, uploadTimeout, errors.New("s3 upload timeout"))
	defer cancel()

	key := S3Key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", util.WrapError("upload session report", err)
	}
	slog.Info("session report uploaded", "bucket", s.cfg.S3.Bucket, "s3_key", key)
	return key, nil
}

// Cleanup removes reports whose filename timestamp is older than the retention
// period, relative to now. It returns the number of deleted reports.
func (s *Store) Cleanup(ctx context.Context, now time.Time) (int, error) {
	if s.cfg.RetentionDays <= 0 || s.cfg.Mode == types.StorageNone {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)

	var deleted int
	var errs []error
	if s.cfg.local() {
		n, err := s.cleanupLocal(cutoff)
		deleted += n
		errs = append(errs, err)
	}
	if s.cfg.remote() {
		n, err := s.cleanupS3(ctx, cutoff)
		deleted += n
		errs = append(errs, err)
	}
	if deleted > 0 {
		slog.Info("cleanup: deleted session reports", "count", deleted)
	}
	return deleted, errors.Join(errs...)
}

// expired reports whether name is a report dated before cutoff.
func expired(name string, cutoff time.Time) bool {
	if !strings.HasPrefix(name, filePrefix) {
		return false
	}
	date, ok := util.ParseFileTimestamp(name)
	return ok && date.Before(cutoff)
}

func (s *Store) cleanupLocal(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.cfg.LocalPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, util.WrapError("read report directory", err)
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() || !expired(entry.Name(), cutoff) {
			continue
		}
		p := filepath.Join(s.cfg.LocalPath, entry.Name())
		if err := os.Remove(p); err != nil {
			slog.Warn("cleanup: failed to delete local report", "path", p, "error", err)
			continue
		}
		deleted++
		slog.Debug("cleanup: deleted local report", "file", entry.Name())
	}
	return deleted, nil
}

func (s *Store) cleanupS3(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, cleanupTimeout, errors.New("s3 cleanup timeout"))
	defer cancel()

	var deleted int
	var continuationToken *string
	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.S3.Bucket),
			Prefix:            aws.String(s3Prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return deleted, util.WrapError("list S3 reports", err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			if !expired(path.Base(key), cutoff) {
				continue
			}
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.cfg.S3.Bucket),
				Key:    obj.Key,
			}); err != nil {
				slog.Warn("cleanup: failed to delete S3 report", "key", key, "error", err)
				continue
			}
			deleted++
			slog.Debug("cleanup: deleted S3 report", "key", key)
		}

		if !aws.ToBool(output.IsTruncated) {
			return deleted, nil
		}
		continuationToken = output.NextContinuationToken
	}
}

// createS3Client creates an S3 client with static credentials. A custom
// endpoint switches to path-style addressing for S3-compatible services.
func createS3Client(cfg *types.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.New(s3.Options{}, options...)
}

// TestS3Connection uploads and deletes a probe object in the bucket.
func TestS3Connection(ctx context.Context, cfg *types.S3Config) error {
	if !cfg.IsConfigured() {
		return ErrS3NotConfigured
	}
	return testConnection(ctx, createS3Client(cfg), cfg.Bucket)
}

func testConnection(ctx context.Context, client s3API, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	testKey := fmt.Sprintf("%stest-connection-%d.txt", s3Prefix, time.Now().UnixNano())
	testContent := []byte("ZuidWest FM sound meter connection test")

	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	}); err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(testKey),
	}); err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}
	return nil
}
