package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// S3StoreConfig holds configuration for S3 artifact storage.
type S3StoreConfig struct {
	Region          string `json:"region" yaml:"region" mapstructure:"region"`
	Bucket          string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool   `json:"force_path_style" yaml:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool   `json:"disable_ssl" yaml:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	MaxRetries      int    `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	PartSize        int64  `json:"part_size" yaml:"part_size" mapstructure:"part_size"`
}

// NewDefaultS3StoreConfig returns an S3 store configuration with defaults.
func NewDefaultS3StoreConfig() *S3StoreConfig {
	return &S3StoreConfig{
		Region:     "us-east-1",
		Prefix:     "artifacts",
		MaxRetries: 3,
	}
}

// Validate checks the configuration.
func (c *S3StoreConfig) Validate() error {
	if c.Bucket == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "S3 bucket is required")
	}
	if c.Region == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "S3 region is required")
	}
	return nil
}

// S3Store keeps artifacts in an S3 bucket under
// <prefix>/<model>/<version>/artifact.bin.
type S3Store struct {
	config     *S3StoreConfig
	logger     *logrus.Logger
	mu         sync.RWMutex
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// NewS3Store creates an unconnected S3 artifact store.
func NewS3Store(config *S3StoreConfig, logger *logrus.Logger) (*S3Store, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "S3 store config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Store{config: config, logger: logger}, nil
}

// Connect establishes the AWS session and verifies bucket access.
func (s *S3Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}
	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}
	// Custom endpoints cover S3-compatible services such as MinIO.
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}
	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageWriteFailed, "failed to create AWS session")
	}

	s.s3Client = s3.New(sess)
	s.uploader = s3manager.NewUploader(sess)
	s.downloader = s3manager.NewDownloader(sess)
	if s.config.PartSize > 0 {
		s.uploader.PartSize = s.config.PartSize
	}

	if _, err := s.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		s.s3Client = nil
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageWriteFailed,
			fmt.Sprintf("failed to access bucket %q", s.config.Bucket))
	}

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
	}).Info("Connected to S3 artifact store")
	return nil
}

// Put uploads the artifact and returns its reference. The stream is hashed
// while uploading so the checksum reflects exactly the bytes stored.
func (s *S3Store) Put(ctx context.Context, modelName string, version int, r io.Reader) (models.ArtifactRef, error) {
	if modelName == "" || version <= 0 {
		return models.ArtifactRef{}, errors.NewInvalidArgumentError("model name and positive version are required")
	}

	s.mu.RLock()
	uploader := s.uploader
	s.mu.RUnlock()
	if uploader == nil {
		return models.ArtifactRef{}, errors.NewStorageWriteError("S3 store is not connected", nil)
	}

	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(r, hasher)}

	key := s.objectKey(modelName, version)
	if _, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
		Body:   counter,
	}); err != nil {
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to upload artifact", err)
	}

	ref := models.ArtifactRef{
		URI:       fmt.Sprintf("s3://%s/%s", s.config.Bucket, key),
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: counter.n,
	}
	s.logger.WithFields(logrus.Fields{
		"model_name": modelName,
		"version":    version,
		"key":        key,
		"size_bytes": counter.n,
	}).Debug("Uploaded artifact")
	return ref, nil
}

// Get downloads the artifact named by ref.
func (s *S3Store) Get(ctx context.Context, ref models.ArtifactRef) (io.ReadCloser, error) {
	s.mu.RLock()
	client := s.s3Client
	s.mu.RUnlock()
	if client == nil {
		return nil, errors.NewStorageReadError("S3 store is not connected", nil)
	}

	u, err := url.Parse(ref.URI)
	if err != nil || u.Scheme != "s3" {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("not an S3 artifact URI: %q", ref.URI))
	}

	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, errors.NewStorageReadError("failed to download artifact", err)
	}
	return out.Body, nil
}

// Close drops the client references.
func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	return nil
}

func (s *S3Store) objectKey(modelName string, version int) string {
	return path.Join(s.config.Prefix, modelName, strconv.Itoa(version), "artifact.bin")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
