package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type VpcConfig struct {
	CidrBlock string            `json:"cidr_block"`
	Tags      map[string]string `json:"tags"`
}

type VpcState struct {
	ID        string `json:"id"`
	CidrBlock string `json:"cidr_block"`
}

type SubnetConfig struct {
	VpcID               string            `json:"vpc_id"`
	CidrBlock           string            `json:"cidr_block"`
	AvailabilityZone    string            `json:"availability_zone"`
	MapPublicIPOnLaunch bool              `json:"map_public_ip_on_launch"`
	Tags                map[string]string `json:"tags"`
}

type SubnetState struct {
	ID    string `json:"id"`
	VpcID string `json:"vpc_id"`
}

type SecurityGroupConfig struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	VpcID       string              `json:"vpc_id"`
	Ingress     []SecurityGroupRule `json:"ingress"`
	Egress      []SecurityGroupRule `json:"egress"`
}

type SecurityGroupRule struct {
	FromPort   int      `json:"from_port"`
	ToPort     int      `json:"to_port"`
	Protocol   string   `json:"protocol"`
	CidrBlocks []string `json:"cidr_blocks"`
}

type SecurityGroupState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) applyVpc(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired VpcConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// An existing VPC with the declared tags is reconciled instead of
	// recreated.
	if prior := priorID(req.Prior); prior != "" {
		out, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{prior}})
		if err == nil && len(out.Vpcs) > 0 {
			raw, _ := json.Marshal(VpcState{ID: prior, CidrBlock: aws.ToString(out.Vpcs[0].CidrBlock)})
			return &provider.ApplyResponse{State: raw}, nil
		}
	}

	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: &desired.CidrBlock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VPC: %w", err)
	}
	p.tag(ctx, aws.ToString(resp.Vpc.VpcId), desired.Tags)

	raw, _ := json.Marshal(VpcState{
		ID:        aws.ToString(resp.Vpc.VpcId),
		CidrBlock: aws.ToString(resp.Vpc.CidrBlock),
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readVpc(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{req.ID}})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe VPC: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	raw, _ := json.Marshal(VpcState{ID: req.ID, CidrBlock: aws.ToString(out.Vpcs[0].CidrBlock)})
	return &provider.ReadResponse{Exists: true, State: raw}, nil
}

func (p *Provider) deleteVpc(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &req.ID}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete VPC: %w", err)
	}
	return nil
}

func (p *Provider) applySubnet(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired SubnetConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if prior := priorID(req.Prior); prior != "" {
		out, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{prior}})
		if err == nil && len(out.Subnets) > 0 {
			raw, _ := json.Marshal(SubnetState{ID: prior, VpcID: aws.ToString(out.Subnets[0].VpcId)})
			return &provider.ApplyResponse{State: raw}, nil
		}
	}

	input := &ec2.CreateSubnetInput{
		VpcId:     &desired.VpcID,
		CidrBlock: &desired.CidrBlock,
	}
	if desired.AvailabilityZone != "" {
		input.AvailabilityZone = &desired.AvailabilityZone
	}

	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet: %w", err)
	}
	p.tag(ctx, aws.ToString(resp.Subnet.SubnetId), desired.Tags)

	if desired.MapPublicIPOnLaunch {
		_, _ = p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            resp.Subnet.SubnetId,
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
	}

	raw, _ := json.Marshal(SubnetState{
		ID:    aws.ToString(resp.Subnet.SubnetId),
		VpcID: aws.ToString(resp.Subnet.VpcId),
	})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readSubnet(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{req.ID}})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe subnet: %w", err)
	}
	if len(out.Subnets) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	raw, _ := json.Marshal(SubnetState{ID: req.ID, VpcID: aws.ToString(out.Subnets[0].VpcId)})
	return &provider.ReadResponse{Exists: true, State: raw}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: &req.ID}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete subnet: %w", err)
	}
	return nil
}

func (p *Provider) applySecurityGroup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired SecurityGroupConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	if prior := priorID(req.Prior); prior != "" {
		out, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{prior}})
		if err == nil && len(out.SecurityGroups) > 0 {
			raw, _ := json.Marshal(SecurityGroupState{ID: prior, Name: desired.Name})
			return &provider.ApplyResponse{State: raw}, nil
		}
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   &desired.Name,
		Description: &desired.Description,
		VpcId:       &desired.VpcID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	groupID := aws.ToString(resp.GroupId)

	if len(desired.Ingress) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &groupID,
			IpPermissions: toIPPermissions(desired.Ingress),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to authorize ingress: %w", err)
		}
	}
	if len(desired.Egress) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       &groupID,
			IpPermissions: toIPPermissions(desired.Egress),
		})
		if err != nil && !strings.Contains(err.Error(), "Duplicate") {
			return nil, fmt.Errorf("failed to authorize egress: %w", err)
		}
	}

	raw, _ := json.Marshal(SecurityGroupState{ID: groupID, Name: desired.Name})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) readSecurityGroup(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	out, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{req.ID}})
	if err != nil {
		if isNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe security group: %w", err)
	}
	if len(out.SecurityGroups) == 0 {
		return &provider.ReadResponse{Exists: false}, nil
	}
	raw, _ := json.Marshal(SecurityGroupState{
		ID:   req.ID,
		Name: aws.ToString(out.SecurityGroups[0].GroupName),
	})
	return &provider.ReadResponse{Exists: true, State: raw}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: &req.ID}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete security group: %w", err)
	}
	return nil
}

func toIPPermissions(rules []SecurityGroupRule) []types.IpPermission {
	var perms []types.IpPermission
	for _, r := range rules {
		perm := types.IpPermission{
			FromPort:   aws.Int32(int32(r.FromPort)),
			ToPort:     aws.Int32(int32(r.ToPort)),
			IpProtocol: aws.String(r.Protocol),
		}
		for _, cidr := range r.CidrBlocks {
			perm.IpRanges = append(perm.IpRanges, types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, perm)
	}
	return perms
}

func (p *Provider) tag(ctx context.Context, id string, tags map[string]string) {
	if len(tags) == 0 {
		return
	}
	var ec2Tags []types.Tag
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, _ = p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags,
	})
}
