package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerConfig configures the container backend.
type DockerConfig struct {
	Image       string
	MemoryMB    int
	CPUs        float64
	PidsLimit   int64
	NetworkMode string // "none" or "bridge"
	ReadOnlyRoot bool
	User        string
}

// DockerBackend runs commands inside a per-task container, hardened with
// memory and CPU caps, a pids limit, capability drop, and
// no-new-privileges.
//
// Grounded on the docker/docker client usage pattern in the retrieval
// pack's Docker helper package (container create/start/exec/remove via
// github.com/docker/docker/client), adapted to a one-shot per-command
// container rather than a long-lived dyad.
type DockerBackend struct {
	cfg DockerConfig

	mu            sync.Mutex
	cli           *client.Client
	lastProbe     time.Time
	available     bool
	probeInterval time.Duration
}

func NewDockerBackend(cfg DockerConfig) *DockerBackend {
	return &DockerBackend{cfg: cfg, probeInterval: 60 * time.Second}
}

func (b *DockerBackend) ensureClient(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cli != nil && time.Since(b.lastProbe) < b.probeInterval {
		if b.available {
			return nil
		}
		return ErrSandboxDisabled
	}

	if b.cli == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			b.available = false
			b.lastProbe = time.Now()
			return ErrSandboxDisabled
		}
		b.cli = cli
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := b.cli.Ping(pingCtx)
	b.available = err == nil
	b.lastProbe = time.Now()
	if !b.available {
		return ErrSandboxDisabled
	}
	return nil
}

func (b *DockerBackend) run(ctx context.Context, req ExecRequest, onLine func(stream, line string)) (*ExecResult, error) {
	if err := b.ensureClient(ctx); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	containerID, err := b.createContainer(runCtx, req)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}
	defer func() {
		_ = b.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := b.cli.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	result, err := b.execInContainer(runCtx, containerID, req, onLine)
	if runCtx.Err() == context.DeadlineExceeded {
		return &ExecResult{TimedOut: true, ExitCode: -1, Stdout: safeString(result)}, nil
	}
	return result, err
}

func safeString(r *ExecResult) string {
	if r == nil {
		return ""
	}
	return r.Stdout
}

func (b *DockerBackend) createContainer(ctx context.Context, req ExecRequest) (string, error) {
	memBytes := int64(b.cfg.MemoryMB) * 1024 * 1024
	nanoCPUs := int64(b.cfg.CPUs * 1e9)

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    memBytes,
			NanoCPUs:  nanoCPUs,
			PidsLimit: &b.cfg.PidsLimit,
		},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		ReadonlyRootfs: b.cfg.ReadOnlyRoot,
		NetworkMode:    container.NetworkMode(dockerNetworkMode(b.cfg.NetworkMode)),
		Binds:          []string{req.WorkspaceDir + ":/workspace"},
	}

	cfg := &container.Config{
		Image:      b.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: "/workspace",
		Env:        StripEnv(nil, req.Env),
		User:       b.cfg.User,
		ExposedPorts: nat.PortSet{},
	}

	resp, err := b.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func dockerNetworkMode(mode string) string {
	if mode == "" {
		return "none"
	}
	return mode
}

func (b *DockerBackend) execInContainer(ctx context.Context, containerID string, req ExecRequest, onLine func(stream, line string)) (*ExecResult, error) {
	execResp, err := b.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", req.Command},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   "/workspace",
	})
	if err != nil {
		return nil, err
	}

	attach, err := b.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, err
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	doneCh := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&trackingWriter{buf: &stdout, stream: "stdout", onLine: onLine},
			&trackingWriter{buf: &stderr, stream: "stderr", onLine: onLine}, attach.Reader)
		doneCh <- copyErr
	}()

	select {
	case <-ctx.Done():
		return &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	case copyErr := <-doneCh:
		if copyErr != nil && copyErr != io.EOF {
			return nil, copyErr
		}
	}

	inspect, err := b.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// trackingWriter buffers full output for the final result while emitting
// completed lines to the live-output callback as they arrive.
type trackingWriter struct {
	buf     *bytes.Buffer
	stream  string
	onLine  func(stream, line string)
	partial string
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.onLine == nil {
		return len(p), nil
	}
	w.partial += string(p)
	for {
		idx := strings.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}
		w.onLine(w.stream, w.partial[:idx])
		w.partial = w.partial[idx+1:]
	}
	return len(p), nil
}
