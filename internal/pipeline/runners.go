package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/opencontainers/go-digest"

	"github.com/stackform-io/stackform/internal/logging"
)

// DefaultRunners returns a registry with the built-in step actions wired in.
// deploy is only available when deployFn is non-nil.
func DefaultRunners(deployFn DeployFunc) *RunnerRegistry {
	reg := NewRunnerRegistry()
	reg.Register(&ScriptRunner{})
	reg.Register(&DockerBuildRunner{})
	reg.Register(&DockerPushRunner{})
	if deployFn != nil {
		reg.Register(&DeployRunner{Deploy: deployFn})
	}
	return reg
}

// ScriptRunner runs a shell command. Args: "command" (required), "env" (map
// of extra environment variables). Publishes no artifacts unless the script
// writes KEY=VALUE lines to the file named by the STACKFORM_ARTIFACTS
// environment variable.
type ScriptRunner struct{}

func (r *ScriptRunner) Name() string { return "script" }

func (r *ScriptRunner) Run(ctx context.Context, req *StepRequest) (map[string]string, error) {
	command, _ := req.Args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("script step requires a command argument")
	}

	artFile, err := os.CreateTemp("", "stackform-artifacts-*")
	if err != nil {
		return nil, err
	}
	artFile.Close()
	defer os.Remove(artFile.Name())

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = req.WorkDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"STACKFORM_REVISION="+req.Revision,
		"STACKFORM_ARTIFACTS="+artFile.Name(),
	)
	if env, ok := req.Args["env"].(map[string]any); ok {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%v", k, env[k]))
		}
	}

	logging.Debug("running script step", "step", req.ID, "command", command)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("command failed: %w", err)
	}

	return readArtifactFile(artFile.Name())
}

func readArtifactFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	arts := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed artifact line %q", line)
		}
		arts[k] = v
	}
	return arts, nil
}

// DockerBuildRunner builds an image from a local context. Args: "context"
// (required), "dockerfile", "repository" (required). The tag is derived from
// the revision and build inputs, so identical inputs produce the same tag.
// Publishes "image" (repository:tag) and "tag".
type DockerBuildRunner struct {
	cli *client.Client
}

func (r *DockerBuildRunner) Name() string { return "docker_build" }

func (r *DockerBuildRunner) ensureClient() error {
	if r.cli != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	r.cli = cli
	return nil
}

func (r *DockerBuildRunner) Run(ctx context.Context, req *StepRequest) (map[string]string, error) {
	if err := r.ensureClient(); err != nil {
		return nil, err
	}
	buildContext, _ := req.Args["context"].(string)
	repository, _ := req.Args["repository"].(string)
	if buildContext == "" || repository == "" {
		return nil, fmt.Errorf("docker_build step requires context and repository arguments")
	}
	dockerfile, _ := req.Args["dockerfile"].(string)
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	tag := BuildTag(req.Revision, buildContext, dockerfile, repository)
	ref := repository + ":" + tag

	tar, err := archive.TarWithOptions(buildContext, &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("creating build context tar: %w", err)
	}

	logging.Info("building image", "step", req.ID, "ref", ref)
	resp, err := r.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{ref},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)

	return map[string]string{
		"image": ref,
		"tag":   tag,
	}, nil
}

// BuildTag derives a short content tag from the revision and the build
// inputs. Re-running the pipeline on the same revision yields the same tag.
func BuildTag(parts ...string) string {
	d := digest.SHA256.FromString(strings.Join(parts, "\x00"))
	return d.Encoded()[:12]
}

// DockerPushRunner pushes a previously built image. Args: "image"
// (required), typically step.<build>.image. Publishes "image" unchanged so
// deploy steps can reference the pushed ref.
type DockerPushRunner struct {
	cli *client.Client
}

func (r *DockerPushRunner) Name() string { return "docker_push" }

func (r *DockerPushRunner) ensureClient() error {
	if r.cli != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	r.cli = cli
	return nil
}

func (r *DockerPushRunner) Run(ctx context.Context, req *StepRequest) (map[string]string, error) {
	if err := r.ensureClient(); err != nil {
		return nil, err
	}
	ref, _ := req.Args["image"].(string)
	if ref == "" {
		return nil, fmt.Errorf("docker_push step requires an image argument")
	}

	auth, err := registryAuth()
	if err != nil {
		return nil, err
	}
	logging.Info("pushing image", "step", req.ID, "ref", ref)
	reader, err := r.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return nil, fmt.Errorf("pushing image: %w", err)
	}
	defer reader.Close()
	io.Copy(os.Stdout, reader)

	return map[string]string{"image": ref}, nil
}

// registryAuth builds the push auth header from STACKFORM_REGISTRY_USER and
// STACKFORM_REGISTRY_PASSWORD. Both unset means anonymous push.
func registryAuth() (string, error) {
	user := os.Getenv("STACKFORM_REGISTRY_USER")
	pass := os.Getenv("STACKFORM_REGISTRY_PASSWORD")
	if user == "" && pass == "" {
		return "", nil
	}
	cfg, err := registry.EncodeAuthConfig(registry.AuthConfig{Username: user, Password: pass})
	if err != nil {
		return "", fmt.Errorf("encoding registry auth: %w", err)
	}
	return cfg, nil
}

// DeployFunc re-applies one managed resource with attribute overrides.
type DeployFunc func(ctx context.Context, address string, overrides map[string]any) error

// DeployRunner points the configured resource at a new artifact. Args:
// "resource" (address, required) plus any attribute overrides; typically
// image = step.<push>.image. Publishes "resource".
type DeployRunner struct {
	Deploy DeployFunc
}

func (r *DeployRunner) Name() string { return "deploy" }

func (r *DeployRunner) Run(ctx context.Context, req *StepRequest) (map[string]string, error) {
	address, _ := req.Args["resource"].(string)
	if address == "" {
		return nil, fmt.Errorf("deploy step requires a resource argument")
	}
	overrides := make(map[string]any, len(req.Args))
	for k, v := range req.Args {
		if k == "resource" {
			continue
		}
		overrides[k] = v
	}

	logging.Info("deploying", "step", req.ID, "resource", address)
	if err := r.Deploy(ctx, address, overrides); err != nil {
		return nil, err
	}
	return map[string]string{"resource": address}, nil
}
