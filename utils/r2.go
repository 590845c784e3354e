package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lifesync/config"
)

// R2Files stores uploads in a Cloudflare R2 bucket through the S3 API.
type R2Files struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

func NewR2Files(ctx context.Context, r2 config.R2Config, cdnBaseURL string) (*R2Files, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID)
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint + "/" + r2.Bucket
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			r2.AccessKey, r2.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &R2Files{client: client, bucket: r2.Bucket, cdnBaseURL: cdnBaseURL}, nil
}

// Save uploads data under key and returns its public URL.
func (r *R2Files) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", r.cdnBaseURL, key), nil
}
