package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type InstanceConfig struct {
	AMI              string            `json:"ami"`
	InstanceType     string            `json:"instance_type"`
	SubnetID         string            `json:"subnet_id"`
	SecurityGroupIDs []string          `json:"security_group_ids"`
	UserData         string            `json:"user_data"`
	Tags             map[string]string `json:"tags"`
}

type InstanceState struct {
	ID        string `json:"id"`
	AMI       string `json:"ami"`
	PublicIP  string `json:"public_ip"`
	PrivateIP string `json:"private_ip"`
}

func (p *Provider) applyInstance(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired InstanceConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// An update with a surviving instance is tags-only; AMI or type changes
	// terminate and recreate.
	if prior := priorID(req.Prior); prior != "" {
		inst, err := p.describeInstance(ctx, prior)
		if err != nil {
			return nil, err
		}
		if inst != nil && inst.State.Name != types.InstanceStateNameTerminated {
			if aws.ToString(inst.ImageId) == desired.AMI && string(inst.InstanceType) == desired.InstanceType {
				p.tag(ctx, prior, desired.Tags)
				return instanceResponse(inst)
			}
			_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
				InstanceIds: []string{prior},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to terminate instance for replacement: %w", err)
			}
			waiter := ec2.NewInstanceTerminatedWaiter(p.ec2Client)
			if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{prior}}, instanceWaitTimeout); err != nil {
				return nil, fmt.Errorf("failed to wait for instance termination: %w", err)
			}
		}
	}

	input := &ec2.RunInstancesInput{
		ImageId:      &desired.AMI,
		InstanceType: types.InstanceType(desired.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if desired.SubnetID != "" {
		input.SubnetId = &desired.SubnetID
	}
	if len(desired.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = desired.SecurityGroupIDs
	}
	if desired.UserData != "" {
		input.UserData = &desired.UserData
	}

	resp, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	id := aws.ToString(resp.Instances[0].InstanceId)
	p.tag(ctx, id, desired.Tags)

	waiter := ec2.NewInstanceRunningWaiter(p.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, instanceWaitTimeout); err != nil {
		return nil, fmt.Errorf("failed to wait for instance: %w", err)
	}

	inst, err := p.describeInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %s disappeared after launch", id)
	}
	return instanceResponse(inst)
}

func (p *Provider) readInstance(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}
	inst, err := p.describeInstance(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if inst == nil || inst.State.Name == types.InstanceStateNameTerminated {
		return &provider.ReadResponse{Exists: false}, nil
	}
	resp, err := instanceResponse(inst)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, State: resp.State}, nil
}

func (p *Provider) deleteInstance(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{req.ID},
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to terminate instance: %w", err)
	}
	waiter := ec2.NewInstanceTerminatedWaiter(p.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{req.ID}}, instanceWaitTimeout); err != nil {
		return fmt.Errorf("failed to wait for instance termination: %w", err)
	}
	return nil
}

func (p *Provider) describeInstance(ctx context.Context, id string) (*types.Instance, error) {
	resp, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}
	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return nil, nil
	}
	return &resp.Reservations[0].Instances[0], nil
}

func instanceResponse(inst *types.Instance) (*provider.ApplyResponse, error) {
	raw, err := json.Marshal(InstanceState{
		ID:        aws.ToString(inst.InstanceId),
		AMI:       aws.ToString(inst.ImageId),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
	})
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{State: raw}, nil
}
