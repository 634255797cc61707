package compute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	DefaultMaxOutputBytes = 1 << 20
	DefaultWaitDelay      = 2 * time.Second
)

type Request struct {
	Computation string
	Argument    string
}

type Outcome struct {
	// Computation is the registered name that ran, after the default was
	// applied.
	Computation string
	ExitCode    int
	Stdout      []byte
	Stderr      []byte
	Duration    time.Duration
}

func (o Outcome) Success() bool {
	return o.ExitCode == 0
}

type Options struct {
	// Timeout bounds a single run on top of the caller's context. Zero means
	// the caller's context is the only limit.
	Timeout        time.Duration
	MaxOutputBytes int
	InheritEnv     bool
	Env            []string
	WaitDelay      time.Duration
}

// Invoker runs computations from a fixed registry of executables. The
// request argument is passed as a single argv entry and is never seen by a
// shell.
type Invoker struct {
	registry    map[string]string
	defaultName string
	opts        Options
}

func NewInvoker(registry map[string]string, defaultName string, opts Options) (*Invoker, error) {
	if len(registry) == 0 {
		return nil, fmt.Errorf("no computations registered")
	}

	paths := make(map[string]string, len(registry))
	for name, path := range registry {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("computation with empty name registered for path '%s'", path)
		}
		if !filepath.IsAbs(path) {
			return nil, fmt.Errorf("computation '%s' must use an absolute executable path, got '%s'", name, path)
		}
		paths[name] = filepath.Clean(path)
	}

	if defaultName == "" && len(paths) == 1 {
		for name := range paths {
			defaultName = name
		}
	}
	if defaultName != "" {
		if _, ok := paths[defaultName]; !ok {
			return nil, fmt.Errorf("default computation '%s' is not registered", defaultName)
		}
	}

	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}

	return &Invoker{registry: paths, defaultName: defaultName, opts: opts}, nil
}

func (inv *Invoker) Computations() []string {
	names := make([]string, 0, len(inv.registry))
	for name := range inv.registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (inv *Invoker) DefaultComputation() string {
	return inv.defaultName
}

func (inv *Invoker) resolve(name string) (string, string, error) {
	if name == "" {
		name = inv.defaultName
	}
	path, ok := inv.registry[name]
	if !ok {
		return "", "", fmt.Errorf("%w: '%s'", ErrUnknownComputation, name)
	}
	return name, path, nil
}

func (inv *Invoker) environment() []string {
	var env []string
	if inv.opts.InheritEnv {
		env = os.Environ()
	} else if path, ok := os.LookupEnv("PATH"); ok {
		env = []string{"PATH=" + path}
	}
	return append(env, inv.opts.Env...)
}

func (inv *Invoker) Invoke(ctx context.Context, req Request) (Outcome, error) {
	name, path, err := inv.resolve(req.Computation)
	if err != nil {
		return Outcome{}, err
	}

	if strings.ContainsRune(req.Argument, 0) {
		return Outcome{}, fmt.Errorf("%w: argument contains a NUL byte", ErrInvalidArgument)
	}

	if inv.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.opts.Timeout)
		defer cancel()
	}

	stdout := &cappedBuffer{limit: inv.opts.MaxOutputBytes}
	stderr := &cappedBuffer{limit: inv.opts.MaxOutputBytes}

	cmd := exec.CommandContext(ctx, path, req.Argument)
	cmd.Env = inv.environment()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = inv.opts.WaitDelay
	isolateProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{Computation: name}, fmt.Errorf("%w: %s: %w", ErrLaunchFailure, name, err)
	}

	// Wait reaps the child and closes its pipes on every path, including
	// when the context kills the process group.
	waitErr := cmd.Wait()

	outcome := Outcome{
		Computation: name,
		ExitCode:    -1,
		Stdout:      stdout.Bytes(),
		Stderr:      stderr.Bytes(),
		Duration:    time.Since(start),
	}
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	execErr := &ExecutionError{Computation: name, ExitCode: outcome.ExitCode, Stderr: outcome.Stderr}

	if ctxErr := ctx.Err(); ctxErr != nil {
		execErr.Err = ctxErr
		return outcome, execErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			execErr.Err = waitErr
		}
		return outcome, execErr
	}

	if stdout.truncated {
		execErr.Err = fmt.Errorf("stdout exceeded %d bytes", inv.opts.MaxOutputBytes)
		return outcome, execErr
	}

	return outcome, nil
}
