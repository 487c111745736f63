package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type LoadBalancerConfig struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Subnets        []string `json:"subnets"`
	SecurityGroups []string `json:"security_groups"`
	Scheme         string   `json:"scheme"`
}

type LoadBalancerState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
	DNS  string `json:"dns_name"`
}

type TargetGroupConfig struct {
	Name       string `json:"name"`
	Port       int    `json:"port"`
	Protocol   string `json:"protocol"`
	VpcID      string `json:"vpc_id"`
	TargetType string `json:"target_type"`
}

type TargetGroupState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

type ListenerConfig struct {
	LoadBalancerARN string `json:"load_balancer_arn"`
	Port            int    `json:"port"`
	Protocol        string `json:"protocol"`
	CertificateARN  string `json:"certificate_arn"`
	TargetGroupARN  string `json:"target_group_arn"`
}

type ListenerState struct {
	ID  string `json:"id"`
	ARN string `json:"arn"`
}

func (p *Provider) applyLoadBalancer(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired LoadBalancerConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	// CreateLoadBalancer is idempotent on name for identical settings; a
	// surviving prior balancer is reconciled via describe.
	if prior := priorID(req.Prior); prior != "" {
		out, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
			LoadBalancerArns: []string{prior},
		})
		if err == nil && len(out.LoadBalancers) > 0 {
			return loadBalancerResponse(&out.LoadBalancers[0])
		}
	}

	resp, err := p.elbv2Client.CreateLoadBalancer(ctx, &elasticloadbalancingv2.CreateLoadBalancerInput{
		Name:           &desired.Name,
		Subnets:        desired.Subnets,
		SecurityGroups: desired.SecurityGroups,
		Scheme:         types.LoadBalancerSchemeEnum(desired.Scheme),
		Type:           types.LoadBalancerTypeEnum(desired.Type),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create load balancer: %w", err)
	}
	return loadBalancerResponse(&resp.LoadBalancers[0])
}

func loadBalancerResponse(lb *types.LoadBalancer) (*provider.ApplyResponse, error) {
	raw, _ := json.Marshal(LoadBalancerState{
		ID:   aws.ToString(lb.LoadBalancerArn),
		Name: aws.ToString(lb.LoadBalancerName),
		ARN:  aws.ToString(lb.LoadBalancerArn),
		DNS:  aws.ToString(lb.DNSName),
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readLoadBalancer(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{req.ID},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe load balancer: %w", err)
	}
	if len(out.LoadBalancers) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	resp, _ := loadBalancerResponse(&out.LoadBalancers[0])
	return &provider.ReadResponse{Exists: true, State: resp.State}, nil
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.elbv2Client.DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
		LoadBalancerArn: &req.ID,
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete load balancer: %w", err)
	}
	return nil
}

func (p *Provider) applyTargetGroup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired TargetGroupConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	resp, err := p.elbv2Client.CreateTargetGroup(ctx, &elasticloadbalancingv2.CreateTargetGroupInput{
		Name:       &desired.Name,
		Port:       aws.Int32(int32(desired.Port)),
		Protocol:   types.ProtocolEnum(desired.Protocol),
		VpcId:      &desired.VpcID,
		TargetType: types.TargetTypeEnum(desired.TargetType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create target group: %w", err)
	}

	raw, _ := json.Marshal(TargetGroupState{
		ID:   aws.ToString(resp.TargetGroups[0].TargetGroupArn),
		Name: aws.ToString(resp.TargetGroups[0].TargetGroupName),
		ARN:  aws.ToString(resp.TargetGroups[0].TargetGroupArn),
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readTargetGroup(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.elbv2Client.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		TargetGroupArns: []string{req.ID},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe target group: %w", err)
	}
	if len(out.TargetGroups) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	raw, _ := json.Marshal(TargetGroupState{
		ID:   req.ID,
		Name: aws.ToString(out.TargetGroups[0].TargetGroupName),
		ARN:  req.ID,
	})
	return &provider.ReadResponse{Exists: true, State: raw}, nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.elbv2Client.DeleteTargetGroup(ctx, &elasticloadbalancingv2.DeleteTargetGroupInput{
		TargetGroupArn: &req.ID,
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete target group: %w", err)
	}
	return nil
}

func (p *Provider) applyListener(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ListenerConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	input := &elasticloadbalancingv2.CreateListenerInput{
		LoadBalancerArn: &desired.LoadBalancerARN,
		Port:            aws.Int32(int32(desired.Port)),
		Protocol:        types.ProtocolEnum(desired.Protocol),
		DefaultActions: []types.Action{{
			Type:           types.ActionTypeEnumForward,
			TargetGroupArn: &desired.TargetGroupARN,
		}},
	}
	if desired.CertificateARN != "" {
		input.Certificates = []types.Certificate{{CertificateArn: &desired.CertificateARN}}
	}

	resp, err := p.elbv2Client.CreateListener(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	raw, _ := json.Marshal(ListenerState{
		ID:  aws.ToString(resp.Listeners[0].ListenerArn),
		ARN: aws.ToString(resp.Listeners[0].ListenerArn),
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readListener(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.elbv2Client.DescribeListeners(ctx, &elasticloadbalancingv2.DescribeListenersInput{
		ListenerArns: []string{req.ID},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe listener: %w", err)
	}
	if len(out.Listeners) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	return &provider.ReadResponse{Exists: true, State: req.Current}, nil
}

func (p *Provider) deleteListener(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.elbv2Client.DeleteListener(ctx, &elasticloadbalancingv2.DeleteListenerInput{
		ListenerArn: &req.ID,
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete listener: %w", err)
	}
	return nil
}
