package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type RepositoryConfig struct {
	Name               string `json:"name"`
	ImageTagMutability string `json:"image_tag_mutability"`
}

type RepositoryState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
	URL  string `json:"repository_url"`
}

func (p *Provider) applyRepository(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RepositoryConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	resp, err := p.ecrClient.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName:     &desired.Name,
		ImageTagMutability: types.ImageTagMutability(desired.ImageTagMutability),
	})
	if err != nil {
		var already *types.RepositoryAlreadyExistsException
		if errors.As(err, &already) {
			out, derr := p.ecrClient.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
				RepositoryNames: []string{desired.Name},
			})
			if derr != nil || len(out.Repositories) == 0 {
				return nil, fmt.Errorf("failed to describe existing repository: %w", derr)
			}
			return repositoryResponse(&out.Repositories[0]), nil
		}
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	return repositoryResponse(resp.Repository), nil
}

func repositoryResponse(repo *types.Repository) *provider.ApplyResponse {
	raw, _ := json.Marshal(RepositoryState{
		ID:   aws.ToString(repo.RepositoryName),
		Name: aws.ToString(repo.RepositoryName),
		ARN:  aws.ToString(repo.RepositoryArn),
		URL:  aws.ToString(repo.RepositoryUri),
	})
	return &provider.ApplyResponse{State: raw}
}

func (p *Provider) readRepository(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.ecrClient.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{req.ID},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe repository: %w", err)
	}
	if len(out.Repositories) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	return &provider.ReadResponse{Exists: true, State: repositoryResponse(&out.Repositories[0]).State}, nil
}

func (p *Provider) deleteRepository(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.ecrClient.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: &req.ID,
		Force:          true,
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	return nil
}
