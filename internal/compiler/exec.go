package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

const maxOutputBytes = 1 << 20

// ErrTimeout is returned when a build or test command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

type commandResult struct {
	Output   string
	ExitCode int
}

type command struct {
	Dir     string
	Name    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// execute runs a command with a timeout and returns its combined stdout and stderr.
// A non-zero exit code is not an error.
func execute(ctx context.Context, c command, logger *zap.Logger) (*commandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var out bytes.Buffer
	limited := &limitedWriter{w: &out, limit: maxOutputBytes}
	cmd.Stdout = limited
	cmd.Stderr = limited

	logger.Debug("Executing command",
		zap.String("command", c.Name),
		zap.Strings("args", c.Args),
		zap.String("dir", c.Dir),
		zap.Duration("timeout", c.Timeout))

	err := cmd.Run()
	result := &commandResult{Output: out.String()}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		return result, fmt.Errorf("%s after %s: %w", c.Name, c.Timeout, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}
	return result, nil
}

type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.limit {
		return len(p), nil
	}
	n := len(p)
	if remaining := lw.limit - lw.written; n > remaining {
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += written
	return n, err
}
