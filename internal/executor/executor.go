// Package executor runs job commands inside their owning containers.
package executor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/labelsched/labelsched/internal/job"
	"github.com/labelsched/labelsched/pkg/docker"
)

// Runner runs a command inside a container and returns its exit code
// and combined output. Implementations must be safe for concurrent
// use by multiple workers.
type Runner interface {
	ExecuteCommand(ctx context.Context, containerID string, command string) (int, string, error)
}

// Record captures the outcome of one execution. It lives only for the
// duration of the run; outcomes are reported to the log sink and never
// feed back into scheduling.
type Record struct {
	Key      job.Key
	Start    time.Time
	End      time.Time
	ExitCode int
	Output   string
	Err      error
}

func (r Record) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Executor dispatches commands through a Runner. A zero timeout means
// executions run unbounded.
type Executor struct {
	runner  Runner
	logger  *zap.Logger
	timeout time.Duration
}

func New(runner Runner, logger *zap.Logger, timeout time.Duration) *Executor {
	return &Executor{
		runner:  runner,
		logger:  logger,
		timeout: timeout,
	}
}

// Execute runs the job's command in its container and logs the
// outcome. A failing job is retried only at its next natural schedule
// tick; there is no out-of-band retry.
func (e *Executor) Execute(ctx context.Context, def job.Definition) Record {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	fields := []zap.Field{
		zap.String("container_id", job.ShortID(def.ContainerID)),
		zap.String("job_name", def.Name),
	}

	e.logger.Info("running job", fields...)

	rec := Record{Key: def.Key(), Start: time.Now()}
	exitCode, output, err := e.runner.ExecuteCommand(ctx, def.ContainerID, def.Command)
	rec.End = time.Now()
	rec.ExitCode = exitCode
	rec.Output = output
	rec.Err = err

	switch {
	case errors.Is(err, docker.ErrContainerGone):
		// The container vanished between fire and dispatch; the next
		// watcher notification reconciles the entry away.
		e.logger.Warn("container gone before execution", append(fields, zap.Error(err))...)
	case err != nil:
		e.logger.Error("job execution failed", append(fields, zap.Error(err))...)
	case exitCode != 0:
		e.logger.Error("job exited non-zero", append(fields,
			zap.Int("exit_code", exitCode),
			zap.String("output", output),
		)...)
	default:
		e.logger.Info("job completed", append(fields,
			zap.Duration("duration", rec.Duration()),
		)...)
	}

	return rec
}
