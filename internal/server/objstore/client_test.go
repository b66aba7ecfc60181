package objstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
)

func testAccount() sc.S3Account {
	return sc.S3Account{
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "uplink-edge",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000/",
	}
}

func stubClient() *Client {
	return &Client{s3c: &s3.Client{}, presign: &s3.PresignClient{}, bucket: "uplink-edge"}
}

func TestNewClient_AppliesAccountSettings(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}

	var capturedBaseEndpoint string
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint == nil {
			t.Fatalf("BaseEndpoint not set")
		}
		capturedBaseEndpoint = *opts.BaseEndpoint
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	client, err := NewClient(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}
	if client.Bucket() != "uplink-edge" {
		t.Fatalf("bucket mismatch: %q", client.Bucket())
	}
	if capturedBaseEndpoint != "http://127.0.0.1:9000/" {
		t.Fatalf("BaseEndpoint mismatch: %q", capturedBaseEndpoint)
	}
}

func TestNewClient_ConfigLoadError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	if _, err := NewClient(context.Background(), testAccount()); err == nil || err.Error() != "load-fail" {
		t.Fatalf("expected load-fail, got %v", err)
	}
}

func TestPresignPut_SetsContentTypeAndExpiry(t *testing.T) {
	orig := presignPutObject
	t.Cleanup(func() { presignPutObject = orig })

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if *in.Bucket != "uplink-edge" || *in.Key != "uploads/lnk1/a.mov" {
			t.Fatalf("unexpected input: %+v", in)
		}
		if in.ContentType == nil || *in.ContentType != "video/quicktime" {
			t.Fatalf("content type not set")
		}
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		if po.Expires != 30*time.Minute {
			t.Fatalf("expiry not applied: %v", po.Expires)
		}
		return &v4.PresignedHTTPRequest{URL: "https://signed/put"}, nil
	}

	url, err := stubClient().PresignPut(context.Background(), "uploads/lnk1/a.mov", "video/quicktime", 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://signed/put" {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestCompleteMultipart_SortsParts(t *testing.T) {
	orig := completeMultipartUpload
	t.Cleanup(func() { completeMultipartUpload = orig })

	var gotOrder []int32
	completeMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
		for _, p := range in.MultipartUpload.Parts {
			gotOrder = append(gotOrder, *p.PartNumber)
		}
		return &s3.CompleteMultipartUploadOutput{Location: aws.String("https://bucket/key")}, nil
	}

	parts := []models.Part{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	loc, err := stubClient().CompleteMultipart(context.Background(), "k", "up1", parts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != "https://bucket/key" {
		t.Fatalf("unexpected location: %q", loc)
	}
	for i, n := range gotOrder {
		if n != int32(i+1) {
			t.Fatalf("parts not sorted: %v", gotOrder)
		}
	}
	// caller's slice must not be reordered in place
	if parts[0].PartNumber != 3 {
		t.Fatalf("input slice mutated: %v", parts)
	}
}

func TestCompleteMultipart_NoLocation(t *testing.T) {
	orig := completeMultipartUpload
	t.Cleanup(func() { completeMultipartUpload = orig })

	completeMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
		return &s3.CompleteMultipartUploadOutput{}, nil
	}

	_, err := stubClient().CompleteMultipart(context.Background(), "k", "up1", []models.Part{{PartNumber: 1, ETag: "a"}})
	if err == nil {
		t.Fatal("expected error when no location returned")
	}
}

func TestCreateMultipart_NoUploadID(t *testing.T) {
	orig := createMultipartUpload
	t.Cleanup(func() { createMultipartUpload = orig })

	createMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
		return &s3.CreateMultipartUploadOutput{}, nil
	}

	_, err := stubClient().CreateMultipart(context.Background(), "k", "video/mp4")
	if err == nil {
		t.Fatal("expected error when no upload id returned")
	}
}

func TestPresignUploadPart_Error(t *testing.T) {
	orig := presignUploadPart
	t.Cleanup(func() { presignUploadPart = orig })

	presignUploadPart = func(pc *s3.PresignClient, ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-part-fail")
	}

	_, err := stubClient().PresignUploadPart(context.Background(), "k", "up1", 1, time.Minute)
	if err == nil || err.Error() != "presign-part-fail" {
		t.Fatalf("want presign-part-fail, got %v", err)
	}
}

func TestHealth_PropagatesError(t *testing.T) {
	orig := listBuckets
	t.Cleanup(func() { listBuckets = orig })

	listBuckets = func(c *s3.Client, ctx context.Context, in *s3.ListBucketsInput) (*s3.ListBucketsOutput, error) {
		return nil, errors.New("unreachable")
	}

	if err := stubClient().Health(context.Background()); err == nil {
		t.Fatal("expected health error")
	}
}
