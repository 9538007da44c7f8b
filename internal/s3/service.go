package s3

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
)

const defaultPresignExpiryDuration = 30 * time.Minute

// Service archives document artifacts to object storage
type Service interface {
	Archive(ctx context.Context, artifact *Artifact) error
	Exists(ctx context.Context, artifact *Artifact) (bool, error)
	GetPresignedURL(ctx context.Context, artifact *Artifact) (string, error)
}

type s3Service struct {
	client *s3.Client
	config *config.S3Config
	logger *logger.Logger
}

// NewService returns the S3 archive, or a no-op archive when archiving is disabled
func NewService(cfg *config.Configuration, logger *logger.Logger) (Service, error) {
	if !cfg.S3.Enabled {
		return NewNoopService(), nil
	}

	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load aws config").
			Mark(ierr.ErrSystem)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Infow("document archive enabled", "bucket", cfg.S3.Bucket, "region", cfg.S3.Region)

	return &s3Service{
		client: client,
		config: &cfg.S3,
		logger: logger,
	}, nil
}

func (s *s3Service) Archive(ctx context.Context, artifact *Artifact) error {
	key := artifact.ObjectKey(s.config.KeyPrefix)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(artifact.Data),
		ContentType: aws.String(artifact.ContentType),
		Metadata: map[string]string{
			"tenant-id": artifact.TenantID,
			"track-id":  artifact.TrackID,
		},
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to archive document file").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}

	s.logger.Debugw("archived document file", "bucket", s.config.Bucket, "key", key, "size", len(artifact.Data))
	return nil
}

func (s *s3Service) Exists(ctx context.Context, artifact *Artifact) (bool, error) {
	key := artifact.ObjectKey(s.config.KeyPrefix)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		var nf *s3types.NotFound
		if ierr.As(err, &nsk) || ierr.As(err, &nf) {
			return false, nil
		}
		return false, ierr.WithError(err).
			WithHint("Failed to check archived document file").
			Mark(ierr.ErrHTTPClient)
	}
	return true, nil
}

func (s *s3Service) GetPresignedURL(ctx context.Context, artifact *Artifact) (string, error) {
	key := artifact.ObjectKey(s.config.KeyPrefix)

	presigner := s3.NewPresignClient(s.client)
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(defaultPresignExpiryDuration))
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to presign document file").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}
	return result.URL, nil
}

type noopService struct{}

// NewNoopService returns an archive that stores nothing
func NewNoopService() Service {
	return noopService{}
}

func (noopService) Archive(context.Context, *Artifact) error { return nil }

func (noopService) Exists(context.Context, *Artifact) (bool, error) { return false, nil }

func (noopService) GetPresignedURL(context.Context, *Artifact) (string, error) {
	return "", ierr.NewError("document archive is disabled").
		WithHint("Document archiving is not enabled").
		Mark(ierr.ErrNotConfigured)
}
