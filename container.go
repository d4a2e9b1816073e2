package toolrunner

import (
	"context"
	"iter"
)

// RunOptions are the inputs a ContainerClient turns into a RunConfig.
type RunOptions struct {
	Image           string
	Tag             string
	Command         []string
	Env             map[string]string
	Name            string
	FileExecutionID string
	AutoRemove      bool
}

// RunConfig is a fully resolved container run request.
type RunConfig struct {
	Image           string            `json:"image"`
	Command         []string          `json:"command"`
	Env             map[string]string `json:"environment"`
	Name            string            `json:"name"`
	Labels          map[string]string `json:"labels,omitempty"`
	AutoRemove      bool              `json:"auto_remove"`
	FileExecutionID string            `json:"file_execution_id,omitempty"`
}

// ContainerClient starts tool containers. The runner treats it as an opaque
// capability; see package container for the Docker implementation.
type ContainerClient interface {
	// RunConfig builds the run request for opts.
	RunConfig(opts RunOptions) RunConfig

	// Run starts a container and returns its handle.
	Run(ctx context.Context, cfg RunConfig) (Container, error)
}

// Container is a handle to one running tool container.
type Container interface {
	// Name is stable for the life of the handle.
	Name() string

	// Logs yields output lines as they are produced, ending when the
	// container's output closes. A non-nil error ends the sequence.
	Logs(ctx context.Context) iter.Seq2[string, error]

	// Cleanup releases the container. It is called once per handle.
	Cleanup(ctx context.Context) error
}
