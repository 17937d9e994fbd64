// Package shell is the callable surface the front end drives: it validates
// requests, runs the engine and keeps the journal and dataset registry.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/friedman-econ/friedman/internal/command"
	"github.com/friedman-econ/friedman/internal/dataset"
	"github.com/friedman-econ/friedman/internal/engine"
	"github.com/friedman-econ/friedman/internal/history"
	"github.com/friedman-econ/friedman/internal/logging"
	"github.com/friedman-econ/friedman/internal/progress"
)

// Resolver locates the engine for each invocation.
type Resolver interface {
	Resolve() (engine.Target, error)
}

// Options configures a Service. Only Resolver is required.
type Options struct {
	Resolver Resolver
	Runner   *engine.Runner
	Datasets *dataset.Registry
	Hub      *progress.Hub
	History  *history.Store // nil disables the journal
	Logger   *logging.Logger
}

// Service runs operations. It is safe for concurrent use; invocations share
// nothing but the registry, the hub and the journal.
type Service struct {
	resolver Resolver
	runner   *engine.Runner
	datasets *dataset.Registry
	hub      *progress.Hub
	history  *history.Store
	log      *logging.Logger

	running atomic.Int64
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Runner == nil {
		opts.Runner = &engine.Runner{}
	}
	if opts.Datasets == nil {
		opts.Datasets = dataset.NewRegistry()
	}
	if opts.Hub == nil {
		opts.Hub = progress.NewHub(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		resolver: opts.Resolver,
		runner:   opts.Runner,
		datasets: opts.Datasets,
		hub:      opts.Hub,
		history:  opts.History,
		log:      opts.Logger,
	}
}

// Request names an operation and its raw parameters. A non-empty JobID
// streams engine progress on that job's topic.
type Request struct {
	Operation string
	Params    command.Params
	JobID     string
}

// Result is a successful invocation.
type Result struct {
	JobID     string
	Operation string
	Args      []string
	Output    json.RawMessage
	Duration  time.Duration
}

// Hub exposes the progress hub for subscribers.
func (s *Service) Hub() *progress.Hub { return s.hub }

// History exposes the journal; it may be nil.
func (s *Service) History() *history.Store { return s.history }

// Datasets exposes the registry.
func (s *Service) Datasets() *dataset.Registry { return s.datasets }

// Running reports how many invocations are in flight.
func (s *Service) Running() int { return int(s.running.Load()) }

// Operations lists every operation descriptor.
func (s *Service) Operations() []*command.Descriptor { return command.All() }

// Engine resolves the current launch target.
func (s *Service) Engine() (engine.Target, error) { return s.resolver.Resolve() }

// Preview returns the engine arguments req would run with, and the full
// command line when the engine can be resolved.
func (s *Service) Preview(req Request) ([]string, []string, error) {
	args, err := s.prepare(req)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.resolver.Resolve()
	if err != nil {
		return args, nil, nil
	}
	return args, target.Argv(s.runner.Args(args)), nil
}

// Invoke validates req, runs the engine and returns its JSON document.
func (s *Service) Invoke(ctx context.Context, req Request) (*Result, error) {
	streaming := req.JobID != ""
	jobID := req.JobID
	if streaming {
		if !history.ValidJobID(jobID) {
			return nil, engine.InvalidParams("job_id %q contains invalid characters", jobID)
		}
		// Subscribers wait for the marker whatever the outcome.
		defer s.hub.Done(jobID)
	} else {
		jobID = uuid.NewString()
	}
	log := s.log.WithJob(jobID)

	args, err := s.prepare(req)
	if err != nil {
		log.Warn("invocation rejected", map[string]any{
			"operation": req.Operation,
			"error":     err.Error(),
		})
		return nil, err
	}

	s.running.Add(1)
	defer s.running.Add(-1)

	started := time.Now()
	rec := &history.Entry{
		JobID:     jobID,
		Operation: req.Operation,
		Args:      args,
		Streamed:  streaming,
		StartedAt: started.UTC(),
	}

	target, err := s.resolver.Resolve()
	if err != nil {
		log.Error("engine not found", map[string]any{"operation": req.Operation, "error": err.Error()})
		s.record(log, rec, nil, nil, err)
		return nil, err
	}
	rec.Command = target.Argv(s.runner.Args(args))

	log.Info("invocation started", map[string]any{
		"operation": req.Operation,
		"mode":      string(target.Mode),
		"args":      len(args),
		"streaming": streaming,
	})

	var sink engine.ProgressSink
	if streaming {
		sink = progress.Tee{s.hub, progress.NewLogSink(s.log)}
	}
	doc, out, err := s.runner.Invoke(ctx, target, args, jobID, sink)
	s.record(log, rec, doc, out, err)

	fields := map[string]any{
		"operation":        req.Operation,
		"duration_seconds": time.Since(started).Seconds(),
	}
	if out != nil {
		fields["exit_code"] = out.ExitCode
	}
	if err != nil {
		fields["error_kind"] = string(engine.KindOf(err))
		log.Error("invocation failed", fields)
		return nil, err
	}
	log.Info("invocation completed", fields)

	return &Result{
		JobID:     jobID,
		Operation: req.Operation,
		Args:      args,
		Output:    json.RawMessage(doc),
		Duration:  time.Since(started),
	}, nil
}

// prepare resolves dataset references and builds the argument vector.
func (s *Service) prepare(req Request) ([]string, error) {
	d, ok := command.Lookup(req.Operation)
	if !ok {
		return nil, engine.InvalidParams("unknown operation %q", req.Operation)
	}

	params := make(command.Params, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	if err := s.resolveDataset(d, params); err != nil {
		return nil, err
	}
	return command.Prepare(d, params)
}

// resolveDataset substitutes a registered dataset's path for dataset_id
// when no explicit path was given.
func (s *Service) resolveDataset(d *command.Descriptor, params command.Params) error {
	raw, ok := params["dataset_id"]
	if !ok || string(raw) == "null" {
		return nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return engine.InvalidParams("dataset_id must be a string")
	}
	info, err := s.datasets.Get(id)
	if err != nil {
		return err
	}

	field := "data"
	if d.Group == "data" {
		field = "path"
	}
	if existing, ok := params[field]; !ok || string(existing) == "null" || string(existing) == `""` {
		params.Set(field, info.Path)
	}
	return nil
}

func (s *Service) record(log *logging.Logger, rec *history.Entry, doc []byte, out *engine.Output, err error) {
	if s.history == nil {
		return
	}

	rec.CompletedAt = time.Now().UTC()
	rec.DurationSeconds = rec.CompletedAt.Sub(rec.StartedAt).Seconds()
	rec.State = history.StateCompleted
	rec.Result = string(doc)
	if out != nil {
		code := out.ExitCode
		rec.ExitCode = &code
	}
	if err != nil {
		rec.State = history.StateFailed
		rec.Error = &history.EntryError{Kind: string(engine.KindOf(err)), Message: err.Error()}
	}

	if out != nil {
		if saveErr := s.history.SaveDebugLog(rec.JobID, out.Stdout, out.Stderr); saveErr != nil {
			log.Warn("failed to save debug log", map[string]any{"error": saveErr.Error()})
		}
	}
	if saveErr := s.history.Save(rec); saveErr != nil {
		log.Warn("failed to save history", map[string]any{"error": saveErr.Error()})
	}
}

// IsNotFound reports whether err is a lookup of an unknown dataset or
// journal entry.
func IsNotFound(err error) bool {
	return errors.Is(err, dataset.ErrNotFound) || errors.Is(err, history.ErrNotFound)
}
