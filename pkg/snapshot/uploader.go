package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/siqueiraa/KafSnap/pkg/config"
)

// S3Uploader copies finished snapshot files to an S3 bucket. Supports
// path-style custom endpoints (MinIO and friends) and static
// credentials.
type S3Uploader struct {
	cfg config.S3Config
}

// NewS3Uploader builds an uploader from the snapshot S3 config.
func NewS3Uploader(cfg config.S3Config) *S3Uploader {
	return &S3Uploader{cfg: cfg}
}

// Upload sends the file at path to the configured bucket under
// <prefix><basename>.
func (u *S3Uploader) Upload(path string) error {
	ctx := context.Background()

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(u.cfg.Region),
		awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(u.cfg.AccessKey, u.cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if u.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(u.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot for upload: %w", err)
	}
	defer file.Close()

	key := u.cfg.Prefix + filepath.Base(path)
	res, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	log.Printf("[Snapshot] Uploaded %s to %s", path, res.Location)
	return nil
}
