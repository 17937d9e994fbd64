package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

const (
	// DefaultOutputFlag asks the engine for machine-readable output.
	DefaultOutputFlag = "--format=json"

	// waitDelay bounds how long a cancelled engine may keep its pipes open
	// after the process group has been signalled.
	waitDelay = 5 * time.Second

	maxLineSize = 1024 * 1024
)

// ProgressSink receives stderr lines of a streaming invocation. Publish must
// not block; it is called from the goroutine draining the engine's stderr.
type ProgressSink interface {
	Publish(jobID, line string)
}

// Output is the raw result of one engine process.
type Output struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner spawns the engine. A zero Runner is usable and appends
// DefaultOutputFlag with no timeout. Runners are safe for concurrent use;
// each call owns its process and buffers.
type Runner struct {
	OutputFlag string
	Timeout    time.Duration
}

// Run executes the engine with args, buffering stdout and stderr until exit.
func (r *Runner) Run(ctx context.Context, target Target, args []string) (*Output, error) {
	return r.run(ctx, target, args, nil)
}

// Stream executes the engine like Run and forwards every stderr line to sink
// under jobID as it arrives. All lines are delivered before Stream returns.
func (r *Runner) Stream(ctx context.Context, target Target, args []string, jobID string, sink ProgressSink) (*Output, error) {
	if sink == nil {
		return r.run(ctx, target, args, nil)
	}
	return r.run(ctx, target, args, func(line string) { sink.Publish(jobID, line) })
}

// Args returns the full engine argument vector for the builder's args.
func (r *Runner) Args(args []string) []string {
	flag := r.OutputFlag
	if flag == "" {
		flag = DefaultOutputFlag
	}
	out := make([]string, 0, len(args)+1)
	return append(append(out, args...), flag)
}

func (r *Runner) run(ctx context.Context, target Target, args []string, onLine func(string)) (*Output, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	name, argv := target.Command(r.Args(args))
	cmd := exec.CommandContext(ctx, name, argv...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout

	var pipe io.ReadCloser
	if onLine == nil {
		cmd.Stderr = &stderr
	} else {
		var err error
		pipe, err = cmd.StderrPipe()
		if err != nil {
			return nil, &Error{Kind: KindSpawn, Message: "failed to spawn " + name, Err: err}
		}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: KindSpawn, Message: "failed to spawn " + name, Err: err}
	}

	// The pipe must be fully drained before Wait closes it.
	var wg sync.WaitGroup
	if pipe != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanner := bufio.NewScanner(pipe)
			scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
			for scanner.Scan() {
				line := scanner.Text()
				stderr.WriteString(line)
				stderr.WriteByte('\n')
				onLine(line)
			}
			if scanner.Err() != nil {
				io.Copy(&stderr, pipe)
			}
		}()
	}
	wg.Wait()
	waitErr := cmd.Wait()

	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if waitErr == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		msg := "cancelled"
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %v", r.Timeout)
		}
		out.ExitCode = -1
		return out, &Error{
			Kind:     KindComputation,
			Message:  msg,
			ExitCode: -1,
			Stderr:   string(out.Stderr),
			Stdout:   string(out.Stdout),
			Err:      ctxErr,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, &Error{Kind: KindSpawn, Message: "engine did not complete", Err: waitErr}
}

// Invoke runs the engine and interprets its output. A non-empty jobID with a
// sink streams progress; otherwise the run is buffered.
func (r *Runner) Invoke(ctx context.Context, target Target, args []string, jobID string, sink ProgressSink) ([]byte, *Output, error) {
	var (
		out *Output
		err error
	)
	if jobID != "" && sink != nil {
		out, err = r.Stream(ctx, target, args, jobID, sink)
	} else {
		out, err = r.Run(ctx, target, args)
	}
	if err != nil {
		return nil, out, err
	}
	doc, err := Interpret(out)
	return doc, out, err
}
