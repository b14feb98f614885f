package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cukefork/cukefork/types"
)

var _ ProcessLauncher = (*execLauncher)(nil)

// ProcessLauncher starts one isolated worker process for a feature and
// blocks until it exits. The worker's exit code is not a failure signal by
// itself: the run contract is decided by whether the JSON result artifact
// exists afterward, so Launch only returns an error when the process could
// not be started or its capture files could not be created.
type ProcessLauncher interface {
	Launch(ctx context.Context, inv types.WorkerInvocation) error
}

// CommandBuilder constructs the exec.Cmd for a worker along with a cleanup
// function. Injected so tests can observe and stub process creation.
type CommandBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// DefaultCommandBuilder builds a plain exec.Cmd with no extra lifecycle.
func DefaultCommandBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	return exec.CommandContext(ctx, name, arg...), func() {}
}

// execLauncher implements ProcessLauncher on top of os/exec.
type execLauncher struct {
	command    []string // engine argv prefix: binary plus fixed args
	baseEnv    []string
	properties map[string]string
	cmdBuilder CommandBuilder
	log        log.Logger
}

// LauncherConfig configures NewProcessLauncher.
type LauncherConfig struct {
	// Command is the engine entry point: the worker binary and any fixed
	// leading arguments. The per-feature argument list is appended to it.
	Command []string
	// BaseEnv is the runtime environment for workers, typically supplied
	// by the work source. Defaults to the orchestrator's own environment.
	BaseEnv []string
	// Properties are system properties forwarded verbatim into every
	// worker's environment as KEY=VALUE pairs.
	Properties map[string]string
	CmdBuilder CommandBuilder
	Log        log.Logger
}

// NewProcessLauncher creates the production launcher.
func NewProcessLauncher(cfg LauncherConfig) (ProcessLauncher, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("engine command cannot be empty")
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = DefaultCommandBuilder
	}
	if cfg.BaseEnv == nil {
		cfg.BaseEnv = os.Environ()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &execLauncher{
		command:    cfg.Command,
		baseEnv:    cfg.BaseEnv,
		properties: cfg.Properties,
		cmdBuilder: cfg.CmdBuilder,
		log:        cfg.Log.New("component", "launcher"),
	}, nil
}

// Launch runs the worker for one invocation. Stdout and stderr are
// redirected to the invocation's capture files, which are created (or
// truncated) even when the process exits immediately.
func (l *execLauncher) Launch(ctx context.Context, inv types.WorkerInvocation) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}

	stdout, err := os.Create(inv.StdoutPath)
	if err != nil {
		return fmt.Errorf("failed to create stdout capture for %s: %w", inv.Feature.Name, err)
	}
	defer func() { _ = stdout.Close() }()

	stderr, err := os.Create(inv.StderrPath)
	if err != nil {
		return fmt.Errorf("failed to create stderr capture for %s: %w", inv.Feature.Name, err)
	}
	defer func() { _ = stderr.Close() }()

	args := append(append([]string{}, l.command[1:]...), inv.Args...)
	cmd, cleanup := l.cmdBuilder(ctx, l.command[0], args...)
	defer cleanup()

	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = l.workerEnv()

	l.log.Debug("Launching worker", "feature", inv.Feature.Name, "binary", l.command[0])

	runErr := cmd.Run()
	_ = stdout.Sync()
	_ = stderr.Sync()

	if runErr != nil {
		exitErr := &exec.ExitError{}
		if errors.As(runErr, &exitErr) {
			// A nonzero exit is the worker's business; the collector will
			// judge the run by the result artifact.
			l.log.Debug("Worker exited nonzero", "feature", inv.Feature.Name, "code", exitErr.ExitCode())
			return nil
		}
		return fmt.Errorf("failed to run worker for %s: %w", inv.Feature.Name, runErr)
	}
	return nil
}

// workerEnv merges the base environment with the forwarded system
// properties. Properties are appended in sorted key order so the
// environment, like the argument list, is deterministic.
func (l *execLauncher) workerEnv() []string {
	env := append([]string{}, l.baseEnv...)
	keys := make([]string, 0, len(l.properties))
	for k := range l.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+l.properties[k])
	}
	return env
}
