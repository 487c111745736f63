// Package docker manages local Docker resources: images, containers,
// networks, and volumes.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stackform-io/stackform/internal/provider"
)

func init() {
	provider.RegisterFactory("docker", func() provider.Interface { return New() })
}

type Provider struct {
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	if host := settings["host"]; host != "" {
		os.Setenv(client.EnvOverrideHost, host)
	}
	return p.ensureClient()
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_image":
		return p.applyImage(ctx, req)
	case "docker_container":
		return p.applyContainer(ctx, req)
	case "docker_network":
		return p.applyNetwork(ctx, req)
	case "docker_volume":
		return p.applyVolume(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return &provider.ReadResponse{Exists: false}, nil
	}

	var exists bool
	switch req.Type {
	case "docker_image":
		_, _, err := p.client.ImageInspectWithRaw(ctx, req.ID)
		exists = err == nil
	case "docker_container":
		_, err := p.client.ContainerInspect(ctx, req.ID)
		exists = err == nil
	case "docker_network":
		_, err := p.client.NetworkInspect(ctx, req.ID, network.InspectOptions{})
		exists = err == nil
	case "docker_volume":
		_, err := p.client.VolumeInspect(ctx, req.ID)
		exists = err == nil
	default:
		return nil, fmt.Errorf("unknown resource type: %s", req.Type)
	}
	return &provider.ReadResponse{Exists: exists, State: req.Current}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	if err := p.ensureClient(); err != nil {
		return err
	}
	if req.ID == "" {
		return nil
	}

	switch req.Type {
	case "docker_image":
		_, err := p.client.ImageRemove(ctx, req.ID, image.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove image: %w", err)
		}
	case "docker_container":
		timeout := 10 // seconds
		_ = p.client.ContainerStop(ctx, req.ID, container.StopOptions{Timeout: &timeout})
		if err := p.client.ContainerRemove(ctx, req.ID, container.RemoveOptions{Force: true}); err != nil {
			if !client.IsErrNotFound(err) {
				return fmt.Errorf("failed to remove container: %w", err)
			}
		}
	case "docker_network":
		if err := p.client.NetworkRemove(ctx, req.ID); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove network: %w", err)
		}
	case "docker_volume":
		if err := p.client.VolumeRemove(ctx, req.ID, true); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove volume: %w", err)
		}
	default:
		return fmt.Errorf("unknown resource type: %s", req.Type)
	}
	return nil
}

func (p *Provider) applyImage(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ImageConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	if desired.BuildContext != "" {
		tar, err := archive.TarWithOptions(desired.BuildContext, &archive.TarOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create build context tar: %w", err)
		}

		resp, err := p.client.ImageBuild(ctx, tar, types.ImageBuildOptions{
			Tags:       []string{desired.Name},
			Dockerfile: desired.Dockerfile,
			Remove:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build image: %w", err)
		}
		defer resp.Body.Close()

		// Drain output to prevent blocking
		io.Copy(os.Stdout, resp.Body)
	} else {
		reader, err := p.client.ImagePull(ctx, desired.Name, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
		io.Copy(os.Stdout, reader)
		reader.Close()
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, desired.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image: %w", err)
	}

	raw, _ := json.Marshal(ImageState{ID: inspect.ID, Name: desired.Name})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) applyContainer(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ContainerConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	// Updating a container means replacing it.
	if len(req.Prior) > 0 {
		var prior ContainerState
		if err := json.Unmarshal(req.Prior, &prior); err == nil && prior.ID != "" {
			timeout := 10
			_ = p.client.ContainerStop(ctx, prior.ID, container.StopOptions{Timeout: &timeout})
			if err := p.client.ContainerRemove(ctx, prior.ID, container.RemoveOptions{Force: true}); err != nil {
				if !client.IsErrNotFound(err) {
					return nil, fmt.Errorf("failed to replace container: %w", err)
				}
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", desired.Image, err)
	}
	io.Copy(os.Stdout, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range desired.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: hostPort},
		}
	}

	var binds []string
	for _, v := range desired.Volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) > 0 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
				binds = append(binds, strings.Join(parts, ":"))
				continue
			}
		}
		binds = append(binds, v)
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if len(desired.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(desired.Networks[0])
	}
	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	config := &container.Config{
		Image:      desired.Image,
		Cmd:        desired.Command,
		Env:        mapToEnvList(desired.Env),
		Labels:     desired.Labels,
		WorkingDir: desired.WorkingDir,
		User:       desired.User,
	}

	resp, err := p.client.ContainerCreate(ctx,
		config,
		hostConfig,
		&network.NetworkingConfig{},
		&v1.Platform{},
		desired.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	raw, _ := json.Marshal(ContainerState{ID: resp.ID, Name: desired.Name, ImageName: desired.Image})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) applyNetwork(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired NetworkConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	// Reconcile: reuse an existing network with this name.
	if existing, err := p.client.NetworkInspect(ctx, desired.Name, network.InspectOptions{}); err == nil {
		raw, _ := json.Marshal(NetworkState{ID: existing.ID, Name: desired.Name, Driver: existing.Driver})
		return &provider.ApplyResponse{State: raw}, nil
	}

	resp, err := p.client.NetworkCreate(ctx, desired.Name, types.NetworkCreate{
		Driver:   desired.Driver,
		Internal: desired.Internal,
		Labels:   desired.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}

	raw, _ := json.Marshal(NetworkState{ID: resp.ID, Name: desired.Name, Driver: desired.Driver})
	return &provider.ApplyResponse{State: raw}, nil
}

func (p *Provider) applyVolume(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired VolumeConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   desired.Name,
		Driver: desired.Driver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume: %w", err)
	}

	raw, _ := json.Marshal(VolumeState{ID: vol.Name, Name: vol.Name, Driver: vol.Driver})
	return &provider.ApplyResponse{State: raw}, nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
