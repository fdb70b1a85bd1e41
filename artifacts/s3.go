// Package artifacts uploads finished conversion outputs to S3-compatible
// object storage.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/appconfig"
)

// PutObjectAPI is the subset of the S3 client the sink uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes files under Prefix/<run id>/ in Bucket.
type S3Sink struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// Enabled reports whether artifact upload is configured.
func Enabled(cfg appconfig.ArtifactsConfig) bool {
	return cfg.Bucket != ""
}

// NewS3Sink builds a client from the default AWS credential chain, overridden
// by static keys and a custom endpoint when configured.
func NewS3Sink(ctx context.Context, cfg appconfig.ArtifactsConfig) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("artifacts: bucket not configured")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// Key returns the object key for rel inside a run.
func (s *S3Sink) Key(runID, rel string) string {
	return strings.TrimPrefix(path.Join(s.Prefix, runID, filepath.ToSlash(rel)), "/")
}

// ContentType picks the MIME type for a stream or video file.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".wav":
		return "audio/wav"
	}
	return "application/octet-stream"
}

// UploadFile puts one local file at key.
func (s *S3Sink) UploadFile(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(local)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("s3 put %s: %s: %w", key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	log.Debug().Str("bucket", s.Bucket).Str("key", key).Msg("Uploaded artifact")
	return nil
}

// UploadDir uploads every regular file under dir, keyed by its path relative
// to dir below keyPrefix. Files are uploaded in name order.
func (s *S3Sink) UploadDir(ctx context.Context, dir, keyPrefix string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	for i, p := range files {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return i, err
		}
		if err := s.UploadFile(ctx, p, path.Join(keyPrefix, filepath.ToSlash(rel))); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

// Publish uploads a run's final file and final stream directory.
func (s *S3Sink) Publish(ctx context.Context, runID, finalFile, streamDir string) error {
	if err := s.UploadFile(ctx, finalFile, s.Key(runID, filepath.Base(finalFile))); err != nil {
		return err
	}
	n, err := s.UploadDir(ctx, streamDir, s.Key(runID, filepath.Base(streamDir)))
	if err != nil {
		return err
	}
	log.Info().Str("bucket", s.Bucket).Str("run", runID).Int("files", n+1).Msg("Published artifacts")
	return nil
}
