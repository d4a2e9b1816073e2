package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/google/uuid"

	"github.com/everydev1618/toolrunner"
)

const (
	LabelManagedBy       = "toolrunner.managed-by"
	LabelFileExecutionID = "toolrunner.file-execution-id"
	managedByValue       = "toolrunner"
	containerPrefix      = "tool-"
	defaultTag           = "latest"
	maxNameLength        = 63
)

// Client runs tool containers on a Docker daemon. It implements
// toolrunner.ContainerClient and is safe for concurrent use.
type Client struct {
	cli          *client.Client
	network      string
	removeOnExit bool
}

// Option configures a Client.
type Option func(*Client)

// WithNetwork attaches tool containers to a Docker network.
func WithNetwork(name string) Option {
	return func(c *Client) {
		c.network = name
	}
}

// WithRemoveOnExit controls whether Cleanup removes the container.
// Keeping containers around is useful when debugging a tool.
func WithRemoveOnExit(remove bool) Option {
	return func(c *Client) {
		c.removeOnExit = remove
	}
}

// WithDockerClient uses an existing Docker API client instead of dialing one.
func WithDockerClient(cli *client.Client) Option {
	return func(c *Client) {
		c.cli = cli
	}
}

// NewClient connects to the Docker daemon.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{removeOnExit: true}
	for _, opt := range opts {
		opt(c)
	}

	if c.cli == nil {
		cli, err := createDockerClient()
		if err != nil {
			return nil, err
		}
		c.cli = cli
	}
	return c, nil
}

// createDockerClient creates a Docker client, trying multiple socket locations
// for compatibility with Docker Desktop on macOS.
func createDockerClient() (*client.Client, error) {
	// First try with environment settings (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Ping(ctx); err == nil {
			return cli, nil
		}
		cli.Close()
	}

	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock", // Docker Desktop macOS
		"unix:///var/run/docker.sock",                               // Linux default
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",     // Colima
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()

		if err == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, fmt.Errorf("could not connect to Docker daemon")
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	return err
}

// Close closes the Docker client.
func (c *Client) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}

// RunConfig resolves the image reference and container name for opts.
func (c *Client) RunConfig(opts toolrunner.RunOptions) toolrunner.RunConfig {
	return toolrunner.RunConfig{
		Image:           imageRef(opts.Image, opts.Tag),
		Command:         opts.Command,
		Env:             opts.Env,
		Name:            containerName(opts.Name),
		AutoRemove:      opts.AutoRemove,
		FileExecutionID: opts.FileExecutionID,
	}
}

// Run pulls the image if needed, then creates and starts the container.
func (c *Client) Run(ctx context.Context, cfg toolrunner.RunConfig) (toolrunner.Container, error) {
	if cfg.Image == "" {
		return nil, toolrunner.ErrNoImage
	}

	if err := c.ensureImage(ctx, cfg.Image); err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", cfg.Image, err)
	}

	labels := map[string]string{LabelManagedBy: managedByValue}
	if cfg.FileExecutionID != "" {
		labels[LabelFileExecutionID] = cfg.FileExecutionID
	}
	maps.Copy(labels, cfg.Labels)

	containerCfg := &container.Config{
		Image:  cfg.Image,
		Cmd:    cfg.Command,
		Env:    envList(cfg.Env),
		Labels: labels,
	}
	hostCfg := &container.HostConfig{
		AutoRemove: cfg.AutoRemove,
	}
	if c.network != "" {
		hostCfg.NetworkMode = container.NetworkMode(c.network)
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("docker create warning", "container", cfg.Name, "warning", w)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := c.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			slog.Warn("failed to remove unstarted container", "container", cfg.Name, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	h := &Handle{
		cli:        c.cli,
		id:         resp.ID,
		name:       cfg.Name,
		autoRemove: cfg.AutoRemove,
		remove:     c.removeOnExit,
	}
	slog.Debug("started tool container", "container", h.Name(), "id", h.ID())
	return h, nil
}

// ensureImage pulls an image if not present locally.
func (c *Client) ensureImage(ctx context.Context, ref string) error {
	_, err := c.cli.ImageInspect(ctx, ref)
	if err == nil {
		return nil
	}

	slog.Info("pulling tool image", "image", ref)
	reader, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Consume the reader to complete the pull
	_, err = io.Copy(io.Discard, reader)
	return err
}

// imageRef joins an image name and tag. Names that already carry a tag or
// digest are used as given.
func imageRef(name, tag string) string {
	if name == "" {
		return ""
	}
	if strings.Contains(name, "@") {
		return name
	}
	if i := strings.LastIndex(name, ":"); i > strings.LastIndex(name, "/") {
		return name
	}
	if tag == "" {
		tag = defaultTag
	}
	return name + ":" + tag
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// containerName returns a Docker-safe name, generating one when empty.
func containerName(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "-")
	name = strings.TrimLeft(name, "_.-")
	if name == "" {
		return containerPrefix + uuid.NewString()
	}
	if len(name) > maxNameLength {
		name = strings.TrimRight(name[:maxNameLength], "_.-")
	}
	return name
}

// envList renders env as sorted KEY=value pairs.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// isGone reports whether a remove failed only because the container is
// already removed or being removed.
func isGone(err error) bool {
	if errdefs.IsNotFound(err) {
		return true
	}
	return errdefs.IsConflict(err) && strings.Contains(err.Error(), "already in progress")
}
