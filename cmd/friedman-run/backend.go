package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/friedman-econ/friedman/internal/api"
	"github.com/friedman-econ/friedman/internal/client"
	"github.com/friedman-econ/friedman/internal/command"
	"github.com/friedman-econ/friedman/internal/progress"
	"github.com/friedman-econ/friedman/internal/shell"
)

// streamGrace bounds how long a remote run waits for trailing progress
// events after the result has arrived.
const streamGrace = 2 * time.Second

// backend runs operations either in-process or through a shell.
type backend interface {
	Preview(ctx context.Context, operation string, params command.Params) (*api.PreviewResponse, error)
	Invoke(ctx context.Context, operation string, params command.Params, jobID string, onLine func(string)) (json.RawMessage, error)
}

type local struct {
	svc *shell.Service
}

func (l *local) Preview(ctx context.Context, operation string, params command.Params) (*api.PreviewResponse, error) {
	args, cmd, err := l.svc.Preview(shell.Request{Operation: operation, Params: params})
	if err != nil {
		return nil, err
	}
	return &api.PreviewResponse{Operation: operation, Args: args, Command: cmd}, nil
}

func (l *local) Invoke(ctx context.Context, operation string, params command.Params, jobID string, onLine func(string)) (json.RawMessage, error) {
	req := shell.Request{Operation: operation, Params: params, JobID: jobID}
	if jobID == "" {
		res, err := l.svc.Invoke(ctx, req)
		if err != nil {
			return nil, err
		}
		return res.Output, nil
	}

	events, cancel := l.svc.Hub().Subscribe(jobID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == progress.EventProgress {
				onLine(ev.Line)
			}
		}
	}()

	res, err := l.svc.Invoke(ctx, req)
	// Closing the subscription still delivers what is buffered.
	cancel()
	<-done
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

type remote struct {
	c *client.Client
}

func (r *remote) Preview(ctx context.Context, operation string, params command.Params) (*api.PreviewResponse, error) {
	return r.c.Preview(ctx, operation, params)
}

func (r *remote) Invoke(ctx context.Context, operation string, params command.Params, jobID string, onLine func(string)) (json.RawMessage, error) {
	if jobID == "" {
		return r.c.Invoke(ctx, operation, params, "")
	}

	stream, err := r.c.Subscribe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.Each(func(ev progress.Event) { onLine(ev.Line) })
	}()

	out, err := r.c.Invoke(ctx, operation, params, jobID)
	select {
	case <-done:
	case <-time.After(streamGrace):
	}
	return out, err
}
