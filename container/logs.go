package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// maxLineSize bounds a single log line. RESULT lines can carry whole
// documents, so this is generous.
const maxLineSize = 16 * 1024 * 1024

// Handle is a started tool container.
type Handle struct {
	cli        *client.Client
	id         string
	name       string
	autoRemove bool
	remove     bool
}

// Name returns the container name.
func (h *Handle) Name() string {
	return h.name
}

// ID returns the Docker container ID, used to correlate runner logs with
// the daemon's.
func (h *Handle) ID() string {
	return h.id
}

// Logs follows the container's combined stdout and stderr, yielding one line
// at a time until the container exits. Breaking out of the loop closes the
// underlying stream.
func (h *Handle) Logs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rc, err := h.cli.ContainerLogs(ctx, h.id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to attach logs: %w", err))
			return
		}
		defer rc.Close()

		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, rc)
			pw.CloseWithError(err)
		}()
		defer pr.Close()

		for line, err := range ScanLines(pr) {
			if !yield(line, err) {
				return
			}
		}
	}
}

// Cleanup removes the container. Containers already removed by the daemon
// are not an error. When removal on exit is disabled the container is left
// in place.
func (h *Handle) Cleanup(ctx context.Context) error {
	if !h.remove {
		slog.Debug("leaving tool container in place", "container", h.name, "id", h.ID())
		return nil
	}

	err := h.cli.ContainerRemove(ctx, h.id, container.RemoveOptions{Force: true})
	if err == nil {
		slog.Debug("removed tool container", "container", h.name, "id", h.ID())
		return nil
	}
	if isGone(err) {
		if !h.autoRemove {
			slog.Debug("tool container already removed", "container", h.name)
		}
		return nil
	}
	return fmt.Errorf("failed to remove container %s: %w", h.name, err)
}

// ScanLines yields the lines of r without their line endings. A read error
// is yielded once and ends the sequence.
func ScanLines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(strings.TrimSuffix(scanner.Text(), "\r"), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}
