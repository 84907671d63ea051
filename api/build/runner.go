package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"quickdeploy/api/logging"
	"quickdeploy/api/model"
)

const DefaultTimeout = 5 * time.Minute

var (
	ErrNoOutputDir = errors.New("build succeeded but no output folder found")
	ErrTimeout     = errors.New("build timed out")
)

// Commander runs one process in dir, writing combined output to out.
type Commander interface {
	Run(ctx context.Context, dir string, out io.Writer, name string, args ...string) error
}

// ExecCommander runs real processes.
type ExecCommander struct{}

func (ExecCommander) Run(ctx context.Context, dir string, out io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(os.Environ(), "CI=true")
	cmd.WaitDelay = 5 * time.Second
	return cmd.Run()
}

// Runner executes a BuildPlan.
type Runner struct {
	Cmd Commander
	// Timeout bounds install and build together.
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewRunner() *Runner {
	return &Runner{Cmd: ExecCommander{}, Timeout: DefaultTimeout, Logger: slog.Default()}
}

// Steps returns the install and build commands of a toolchain.
func Steps(tc model.Toolchain) [][]string {
	var install []string
	switch tc {
	case model.ToolchainYarn:
		install = []string{"yarn", "install"}
	case model.ToolchainPNPM:
		install = []string{"pnpm", "install", "--shamefully-hoist"}
	case model.ToolchainNPM:
		install = []string{"npm", "ci"}
	default:
		return nil
	}
	return [][]string{install, {string(tc), "run", "build"}}
}

// Execute runs the plan in dir and returns the directory holding the
// deployable output. Without a build step that is dir itself. out
// receives process output; it may be nil.
func (r *Runner) Execute(ctx context.Context, dir string, plan model.BuildPlan, out io.Writer) (string, error) {
	if !plan.HasBuildStep {
		return dir, nil
	}
	steps := Steps(plan.Toolchain)
	if steps == nil {
		return "", fmt.Errorf("no commands for toolchain %q", plan.Toolchain)
	}
	if out == nil {
		out = io.Discard
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.Cmd
	if cmd == nil {
		cmd = ExecCommander{}
	}
	for _, step := range steps {
		logging.FromContext(ctx, r.Logger).Info("build step", "cmd", strings.Join(step, " "))
		if err := cmd.Run(ctx, dir, out, step[0], step[1:]...); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%s: %w after %s", strings.Join(step, " "), ErrTimeout, timeout)
			}
			return "", fmt.Errorf("%s: %w", strings.Join(step, " "), err)
		}
	}

	name, ok := findOutput(dir)
	if !ok {
		return "", fmt.Errorf("%w (looked for %s)", ErrNoOutputDir, strings.Join(OutputDirs, ", "))
	}
	return filepath.Join(dir, name), nil
}

