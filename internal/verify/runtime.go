package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Paths inside the verification container. The repository is mounted
// read-only; everything the steps write goes to the artifact mount.
const (
	WorkspaceMount = "/workspace"
	ArtifactsMount = "/artifacts"
)

// ContainerSpec describes a verification container.
type ContainerSpec struct {
	Image    string
	RepoDir  string
	RunDir   string
	CPUs     int
	MemoryGB int
	Env      map[string]string
}

// Runtime abstracts the container engine so tests can substitute a
// mock. The real implementation shells out to the docker CLI.
type Runtime interface {
	// Ping reports whether the engine daemon is reachable.
	Ping(ctx context.Context) error

	// EnsureImage makes the image available locally, pulling if needed.
	EnsureImage(ctx context.Context, image string) error

	// Create starts a long-lived container from the spec and returns
	// its ID.
	Create(ctx context.Context, spec ContainerSpec) (string, error)

	// Exec runs a shell command in the container, streaming combined
	// output to w, and returns the command's exit code.
	Exec(ctx context.Context, containerID, command string, w io.Writer) (int, error)

	// Destroy force-removes the container. It must succeed even for
	// containers that already exited.
	Destroy(containerID string) error
}

// DockerRuntime drives containers through the docker CLI.
type DockerRuntime struct {
	// Binary overrides the docker executable path, for tests.
	Binary string
}

// NewDockerRuntime returns a Runtime backed by the docker CLI.
func NewDockerRuntime() *DockerRuntime {
	return &DockerRuntime{Binary: "docker"}
}

func (r *DockerRuntime) Ping(ctx context.Context) error {
	out, err := r.command(ctx, "version", "--format", "{{.Server.Version}}").CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker daemon unreachable: %s", firstLine(out, err))
	}
	return nil
}

func (r *DockerRuntime) EnsureImage(ctx context.Context, image string) error {
	if err := r.command(ctx, "image", "inspect", image).Run(); err == nil {
		return nil
	}
	out, err := r.command(ctx, "pull", image).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %s", image, firstLine(out, err))
	}
	return nil
}

func (r *DockerRuntime) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	args := []string{
		"run", "--detach",
		"--cpus", fmt.Sprintf("%d", spec.CPUs),
		"--memory", fmt.Sprintf("%dg", spec.MemoryGB),
		"--volume", spec.RepoDir + ":" + WorkspaceMount + ":ro",
		"--volume", spec.RunDir + ":" + ArtifactsMount,
		"--workdir", WorkspaceMount,
	}
	for k, v := range spec.Env {
		args = append(args, "--env", k+"="+v)
	}
	// tail keeps the container alive between step execs.
	args = append(args, spec.Image, "tail", "-f", "/dev/null")

	out, err := r.command(ctx, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to create container: %s", firstLine(out, err))
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *DockerRuntime) Exec(ctx context.Context, containerID, command string, w io.Writer) (int, error) {
	cmd := r.command(ctx, "exec", "--workdir", WorkspaceMount, containerID, "sh", "-c", command)
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (r *DockerRuntime) Destroy(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := r.command(ctx, "rm", "--force", containerID).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %s", containerID, firstLine(out, err))
	}
	return nil
}

func (r *DockerRuntime) command(ctx context.Context, args ...string) *exec.Cmd {
	bin := r.Binary
	if bin == "" {
		bin = "docker"
	}
	return exec.CommandContext(ctx, bin, args...)
}

func firstLine(out []byte, fallback error) string {
	s := strings.TrimSpace(string(out))
	if s == "" {
		return fallback.Error()
	}
	if i := bytes.IndexByte([]byte(s), '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
