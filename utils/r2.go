// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

// R2Archive stores submitted source text in a Cloudflare R2 bucket through the S3 API.
type R2Archive struct {
	client *s3.Client
	bucket string
}

// NewR2Archive builds a client for https://<accountID>.r2.cloudflarestorage.com.
func NewR2Archive(ctx context.Context, accountID, accessKeyID, accessKeySecret, bucket string) (*R2Archive, error) {
	return newS3Archive(ctx, fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID), accessKeyID, accessKeySecret, bucket, false)
}

func newS3Archive(ctx context.Context, endpoint, accessKeyID, accessKeySecret, bucket string, pathStyle bool) (*R2Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load R2 config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = pathStyle
		// R2 rejects the streaming checksum trailers newer SDKs send by default.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &R2Archive{client: client, bucket: bucket}, nil
}

// SubmissionKey is the object key for one submission, e.g.
// "submissions/<session>/<player>-1767225600.txt".
func SubmissionKey(sessionID, playerID string, at time.Time) string {
	return fmt.Sprintf("submissions/%s/%s-%d.txt", sessionID, playerID, at.Unix())
}

// ArchiveSubmission uploads code and returns the object key.
func (a *R2Archive) ArchiveSubmission(ctx context.Context, sessionID, playerID, code string) (string, error) {
	key := SubmissionKey(sessionID, playerID, time.Now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(code)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", eris.Wrapf(err, "failed to upload %s to R2", key)
	}
	return key, nil
}
