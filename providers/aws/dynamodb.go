package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type TableConfig struct {
	Name        string                `json:"name"`
	Attributes  []AttributeDefinition `json:"attributes"`
	KeySchema   []KeySchemaElement    `json:"key_schema"`
	BillingMode string                `json:"billing_mode"`
}

type AttributeDefinition struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type KeySchemaElement struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

func (p *Provider) applyTable(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired TableConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	var attrs []types.AttributeDefinition
	for _, a := range desired.Attributes {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(a.Name),
			AttributeType: types.ScalarAttributeType(a.Type),
		})
	}
	var keySchema []types.KeySchemaElement
	for _, k := range desired.KeySchema {
		keySchema = append(keySchema, types.KeySchemaElement{
			AttributeName: aws.String(k.Name),
			KeyType:       types.KeyType(k.Type),
		})
	}

	resp, err := p.dynamodbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            &desired.Name,
		AttributeDefinitions: attrs,
		KeySchema:            keySchema,
		BillingMode:          types.BillingMode(desired.BillingMode),
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			out, derr := p.dynamodbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: &desired.Name,
			})
			if derr != nil {
				return nil, fmt.Errorf("failed to describe existing table: %w", derr)
			}
			return tableResponse(out.Table), nil
		}
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return tableResponse(resp.TableDescription), nil
}

func tableResponse(desc *types.TableDescription) *provider.ApplyResponse {
	raw, _ := json.Marshal(TableState{
		ID:   aws.ToString(desc.TableName),
		Name: aws.ToString(desc.TableName),
		ARN:  aws.ToString(desc.TableArn),
	})
	return &provider.ApplyResponse{State: raw}
}

func (p *Provider) readTable(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.dynamodbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &req.ID,
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe table: %w", err)
	}
	return &provider.ReadResponse{Exists: true, State: tableResponse(out.Table).State}, nil
}

func (p *Provider) deleteTable(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.dynamodbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: &req.ID,
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("failed to delete table: %w", err)
	}
	return nil
}
