package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type RecordConfig struct {
	ZoneID  string       `json:"zone_id"`
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	TTL     int          `json:"ttl"`
	Records []string     `json:"records"`
	Alias   *AliasTarget `json:"alias"`
}

type AliasTarget struct {
	DNSName              string `json:"dns_name"`
	HostedZoneID         string `json:"hosted_zone_id"`
	EvaluateTargetHealth bool   `json:"evaluate_target_health"`
}

// RecordState keeps the full record definition so delete can submit the
// matching change batch.
type RecordState struct {
	ID      string       `json:"id"`
	ZoneID  string       `json:"zone_id"`
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	TTL     int          `json:"ttl"`
	Records []string     `json:"records"`
	Alias   *AliasTarget `json:"alias"`
}

func (p *Provider) applyRecord(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RecordConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// UPSERT makes create and update the same operation.
	if err := p.changeRecord(ctx, types.ChangeActionUpsert, &desired); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(RecordState{
		ID:      fmt.Sprintf("%s_%s_%s", desired.ZoneID, desired.Name, desired.Type),
		ZoneID:  desired.ZoneID,
		Name:    desired.Name,
		Type:    desired.Type,
		TTL:     desired.TTL,
		Records: desired.Records,
		Alias:   desired.Alias,
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) deleteRecord(ctx context.Context, req *provider.DeleteRequest) error {
	if len(req.Current) == 0 {
		return nil
	}
	var prior RecordState
	if err := json.Unmarshal(req.Current, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Name == "" {
		return nil
	}
	err := p.changeRecord(ctx, types.ChangeActionDelete, &RecordConfig{
		ZoneID:  prior.ZoneID,
		Name:    prior.Name,
		Type:    prior.Type,
		TTL:     prior.TTL,
		Records: prior.Records,
		Alias:   prior.Alias,
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (p *Provider) changeRecord(ctx context.Context, action types.ChangeAction, cfg *RecordConfig) error {
	recordSet := &types.ResourceRecordSet{
		Name: &cfg.Name,
		Type: types.RRType(cfg.Type),
	}
	if cfg.Alias != nil {
		recordSet.AliasTarget = &types.AliasTarget{
			DNSName:              &cfg.Alias.DNSName,
			HostedZoneId:         &cfg.Alias.HostedZoneID,
			EvaluateTargetHealth: cfg.Alias.EvaluateTargetHealth,
		}
	} else {
		recordSet.TTL = aws.Int64(int64(cfg.TTL))
		for _, r := range cfg.Records {
			recordSet.ResourceRecords = append(recordSet.ResourceRecords, types.ResourceRecord{
				Value: aws.String(r),
			})
		}
	}

	_, err := p.route53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &cfg.ZoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            action,
				ResourceRecordSet: recordSet,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to change record set: %w", err)
	}
	return nil
}
