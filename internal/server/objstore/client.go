// Package objstore is a thin gateway over S3-compatible object storage:
// presigned PUT/GET URLs and the multipart upload lifecycle. The server runs
// two independent clients, one per storage account (edge and archive).
package objstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	presignUploadPart = func(pc *s3.PresignClient, ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignUploadPart(ctx, in, optFns...)
	}
	createMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
		return c.CreateMultipartUpload(ctx, in)
	}
	completeMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
		return c.CompleteMultipartUpload(ctx, in)
	}
	abortMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
		return c.AbortMultipartUpload(ctx, in)
	}
	listBuckets = func(c *s3.Client, ctx context.Context, in *s3.ListBucketsInput) (*s3.ListBucketsOutput, error) {
		return c.ListBuckets(ctx, in)
	}
)

// Client wraps one S3-compatible account.
type Client struct {
	s3c     *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewClient builds a Client for the given account using static credentials
// and a base endpoint override (MinIO, R2 and Wasabi all speak this dialect).
func NewClient(ctx context.Context, account sc.S3Account) (*Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(account.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			account.AccessKey,
			account.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(account.Endpoint)
	})

	return &Client{
		s3c:     client,
		presign: newS3PresignClient(client),
		bucket:  account.Bucket,
	}, nil
}

// Bucket returns the account's bucket name.
func (c *Client) Bucket() string { return c.bucket }

// PresignPut returns a time-boxed URL allowing one PUT of the object.
func (c *Client) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	}
	if contentType != "" {
		in.ContentType = &contentType
	}
	req, err := presignPutObject(c.presign, ctx, in, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PresignGet returns a time-boxed URL allowing one GET of the object.
func (c *Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := presignGetObject(c.presign, ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// CreateMultipart initiates a multipart upload and returns the provider's
// upload id.
func (c *Client) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket: &c.bucket,
		Key:    &key,
	}
	if contentType != "" {
		in.ContentType = &contentType
	}
	out, err := createMultipartUpload(c.s3c, ctx, in)
	if err != nil {
		return "", err
	}
	if out.UploadId == nil || *out.UploadId == "" {
		return "", fmt.Errorf("no upload id returned for %q", key)
	}
	return *out.UploadId, nil
}

// PresignUploadPart returns a time-boxed URL allowing one PUT of the given part.
func (c *Client) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	req, err := presignUploadPart(c.presign, ctx, &s3.UploadPartInput{
		Bucket:     &c.bucket,
		Key:        &key,
		UploadId:   &uploadID,
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// CompleteMultipart finalizes the upload. Parts are sorted by part number
// before submission; the storage backend's assembly guarantee depends on
// ascending order, and client-supplied input must not be trusted to be sorted.
func (c *Client) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.Part) (string, error) {
	sorted := make([]models.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, 0, len(sorted))
	for _, p := range sorted {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}

	out, err := completeMultipartUpload(c.s3c, ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          &c.bucket,
		Key:             &key,
		UploadId:        &uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", err
	}
	if out.Location == nil || *out.Location == "" {
		return "", fmt.Errorf("no location returned for %q", key)
	}
	return *out.Location, nil
}

// AbortMultipart discards an in-progress multipart upload and its parts.
func (c *Client) AbortMultipart(ctx context.Context, key, uploadID string) error {
	_, err := abortMultipartUpload(c.s3c, ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &c.bucket,
		Key:      &key,
		UploadId: &uploadID,
	})
	return err
}

// Health verifies the account is reachable and the credentials are accepted.
func (c *Client) Health(ctx context.Context) error {
	_, err := listBuckets(c.s3c, ctx, &s3.ListBucketsInput{})
	return err
}
