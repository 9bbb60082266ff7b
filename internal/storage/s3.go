package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/prayatna/fraudscreen/backend/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds the S3 client for the document bucket from AWS_* env
// configuration. Path-style addressing keeps MinIO-compatible endpoints
// working.
func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// GetDocument fetches a raw application document by its file key.
func GetDocument(ctx context.Context, client *s3.Client, key string) ([]byte, error) {
	bucket := util.GetEnvString("AWS_BUCKET", "fraudscreen")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document from S3: %v", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read document contents: %v", err)
	}

	return buf.Bytes(), nil
}

// PutDocument stores an uploaded application document under
// documents/<documentID><ext> and returns the file key.
func PutDocument(ctx context.Context, client *s3.Client, documentID string, name string, file io.ReadSeeker) (string, error) {
	bucket := util.GetEnvString("AWS_BUCKET", "fraudscreen")
	ext := filepath.Ext(name)
	mimeType := mime.TypeByExtension(ext)
	key := fmt.Sprintf("documents/%s%s", documentID, ext)

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document to S3: %v", err)
	}

	return key, nil
}

// DeleteDocument removes a stored document by its file key.
func DeleteDocument(ctx context.Context, client *s3.Client, key string) error {
	bucket := util.GetEnvString("AWS_BUCKET", "fraudscreen")
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document from S3: %v", err)
	}

	return nil
}
