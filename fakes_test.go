package toolrunner

import (
	"context"
	"iter"
	"sync"
)

// fakeContainer yields a fixed set of lines, then err if set.
type fakeContainer struct {
	name       string
	lines      []string
	err        error
	cleanupErr error

	mu       sync.Mutex
	read     int
	cleanups int
}

func (c *fakeContainer) Name() string { return c.name }

func (c *fakeContainer) Logs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, line := range c.lines {
			c.mu.Lock()
			c.read++
			c.mu.Unlock()
			if !yield(line, nil) {
				return
			}
		}
		if c.err != nil {
			yield("", c.err)
		}
	}
}

func (c *fakeContainer) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
	return c.cleanupErr
}

func (c *fakeContainer) counts() (read, cleanups int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read, c.cleanups
}

// fakeClient records run configs and hands out one container.
type fakeClient struct {
	container *fakeContainer
	runErr    error

	mu   sync.Mutex
	runs []RunConfig
}

func (f *fakeClient) RunConfig(opts RunOptions) RunConfig {
	name := opts.Name
	if name == "" {
		name = "tool-test"
	}
	return RunConfig{
		Image:           opts.Image + ":" + opts.Tag,
		Command:         opts.Command,
		Env:             opts.Env,
		Name:            name,
		AutoRemove:      opts.AutoRemove,
		FileExecutionID: opts.FileExecutionID,
	}
}

func (f *fakeClient) Run(ctx context.Context, cfg RunConfig) (Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, cfg)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.container, nil
}

func (f *fakeClient) lastRun() RunConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return RunConfig{}
	}
	return f.runs[len(f.runs)-1]
}

type publishedMsg struct {
	channel string
	event   PublishedEvent
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	err error

	mu     sync.Mutex
	events []publishedMsg
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, event PublishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedMsg{channel: channel, event: event})
	return nil
}

func (p *recordingPublisher) published() []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMsg(nil), p.events...)
}
