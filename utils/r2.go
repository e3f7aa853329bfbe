// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

type R2Config struct {
	AccountID    string
	AccessKey    string
	AccessSecret string
	Bucket       string
	CDNBaseURL   string
	// Endpoint overrides the account endpoint, for S3 compatible stores.
	Endpoint string
}

// R2 uploads archive documents to a Cloudflare R2 bucket.
type R2 struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

func NewR2(ctx context.Context, rc R2Config) (*R2, error) {
	endpoint := rc.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", rc.AccountID)
	}
	cdnBaseURL := rc.CDNBaseURL
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint + "/" + rc.Bucket
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			rc.AccessKey, rc.AccessSecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2{client: client, bucket: rc.Bucket, cdnBaseURL: cdnBaseURL}, nil
}

// Upload stores body under key and returns its public URL.
func (r *R2) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", r.cdnBaseURL, key), nil
}

// ArchiveKey is the object key of a tournament's final standings,
// e.g. "tournaments/spring-cup-3f2a9c1e.json".
func ArchiveKey(name, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	s := slug.Make(name)
	if s == "" {
		return fmt.Sprintf("tournaments/%s.json", id)
	}
	return fmt.Sprintf("tournaments/%s-%s.json", s, short)
}
