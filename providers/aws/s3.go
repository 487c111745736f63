package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/stackform-io/stackform/internal/provider"
)

type BucketConfig struct {
	Bucket string `json:"bucket"`
}

type BucketState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

func (p *Provider) applyBucket(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired BucketConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.Bucket == "" {
		desired.Bucket = req.Name
	}

	// Bucket names are globally unique; creating a bucket we already own is
	// the idempotent success case.
	_, err := p.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &desired.Bucket,
	})
	if err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "BucketAlreadyOwnedByYou" {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	raw, _ := json.Marshal(BucketState{
		ID:   desired.Bucket,
		Name: desired.Bucket,
		ARN:  fmt.Sprintf("arn:aws:s3:::%s", desired.Bucket),
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readBucket(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &req.ID})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && (ae.ErrorCode() == "NotFound" || ae.ErrorCode() == "NoSuchBucket") {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	return &provider.ReadResponse{Exists: true, State: req.Current}, nil
}

func (p *Provider) deleteBucket(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: &req.ID})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}
	return nil
}
