package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

const s3RetryWait = 2 * time.Second

type s3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var errS3KeyNotFound = errors.New("key not found in s3 bucket")

func (l *Loader) defaultS3Client(ctx context.Context) (s3API, error) {
	cfg, err := loadAWSCredentials(ctx, l.params.AWSRegion, l.params.AWSAccessKeyID, l.params.AWSSecretAccessKey, l.logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}
	return s3.NewFromConfig(*cfg), nil
}

func (l *Loader) loadS3(ctx context.Context, source string) (*Payload, error) {
	bucket, key, err := parseS3URL(source)
	if err != nil {
		return nil, err
	}

	client, err := l.newS3Client(ctx)
	if err != nil {
		return nil, err
	}

	var size int64
	err = retry.Times(uint(l.params.S3Retries)).Wait(s3RetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		objectSize, headErr := headObject(ctx, client, bucket, key)
		if headErr != nil {
			if errors.Is(headErr, errS3KeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, source), true
			}
			l.logger.Debugf("head object %s (attempt %d): %s", source, attempt+1, headErr)
			return headErr, false
		}
		size = objectSize
		return nil, true
	})
	if err != nil {
		return nil, err
	}
	if err := l.checkSize(size); err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	downloader := manager.NewDownloader(client)
	err = retry.Times(uint(l.params.S3Retries)).Wait(s3RetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("download object: %w", err), false
		}
		return nil, true
	})
	if err != nil {
		return nil, fmt.Errorf("all retries failed: %w", err)
	}

	data := buf.Bytes()
	l.logger.Debugf("Downloaded %s (%s)", source, units.BytesSize(float64(len(data))))

	return FromBytes(path.Base(key), data), nil
}

func headObject(ctx context.Context, client s3API, bucket, key string) (int64, error) {
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.NotFound:
				return 0, errS3KeyNotFound
			default:
				return 0, fmt.Errorf("aws api error: %w", err)
			}
		}
		return 0, fmt.Errorf("generic aws error: %w", err)
	}

	return aws.ToInt64(out.ContentLength), nil
}

func parseS3URL(source string) (string, string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", source, err)
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid s3 url %q: expected s3://bucket/key", source)
	}
	return bucket, key, nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
