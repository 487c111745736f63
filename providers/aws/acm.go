package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type CertificateConfig struct {
	DomainName       string            `json:"domain_name"`
	ValidationMethod string            `json:"validation_method"`
	Tags             map[string]string `json:"tags"`
}

type CertificateState struct {
	ID         string `json:"id"`
	ARN        string `json:"arn"`
	DomainName string `json:"domain_name"`
}

func (p *Provider) applyCertificate(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired CertificateConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// A certificate's domain name is immutable; a surviving prior cert is
	// kept as-is.
	if prior := priorID(req.Prior); prior != "" {
		out, err := p.acmClient.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
			CertificateArn: &prior,
		})
		if err == nil && out.Certificate != nil {
			raw, _ := json.Marshal(CertificateState{
				ID:         prior,
				ARN:        prior,
				DomainName: aws.ToString(out.Certificate.DomainName),
			})
			return &provider.ApplyResponse{State: raw}, nil
		}
	}

	input := &acm.RequestCertificateInput{
		DomainName:       &desired.DomainName,
		ValidationMethod: types.ValidationMethod(desired.ValidationMethod),
	}
	for k, v := range desired.Tags {
		input.Tags = append(input.Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	resp, err := p.acmClient.RequestCertificate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to request certificate: %w", err)
	}

	arn := aws.ToString(resp.CertificateArn)
	raw, _ := json.Marshal(CertificateState{ID: arn, ARN: arn, DomainName: desired.DomainName})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readCertificate(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.acmClient.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: &req.ID,
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe certificate: %w", err)
	}
	raw, _ := json.Marshal(CertificateState{
		ID:         req.ID,
		ARN:        req.ID,
		DomainName: aws.ToString(out.Certificate.DomainName),
	})
	return &provider.ReadResponse{Exists: true, State: raw}, nil
}

func (p *Provider) deleteCertificate(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.acmClient.DeleteCertificate(ctx, &acm.DeleteCertificateInput{
		CertificateArn: &req.ID,
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}
	return nil
}
