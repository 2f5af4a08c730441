package shutdown

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Task func() error

type Manager struct {
	logger   *zap.Logger
	tasks    []namedTask
	shutdown chan struct{}
	timeout  time.Duration
}

type namedTask struct {
	name string
	task Task
}

func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		logger:   logger,
		shutdown: make(chan struct{}),
		timeout:  timeout,
	}
}

// RegisterTask registers a cleanup task. Tasks run in registration order.
func (m *Manager) RegisterTask(name string, task Task) {
	m.tasks = append(m.tasks, namedTask{name: name, task: task})
}

func (m *Manager) Initiate() {
	select {
	case <-m.shutdown:
		// already initiated
	default:
		close(m.shutdown)
	}
}

func (m *Manager) Done() <-chan struct{} {
	return m.shutdown
}

func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.shutdown:
		m.logger.Info("shutdown | starting shutdown sequence")
		return m.executeTasks()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) executeTasks() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Debug("shutdown | executing tasks before shutdown", zap.Int("tasks", len(m.tasks)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, nt := range m.tasks {
			if ctx.Err() != nil {
				// Deadline passed; abandon the remaining tasks.
				return
			}
			m.logger.Info("shutdown | executing shutdown task",
				zap.Int("task_num", i+1),
				zap.String("task", nt.name),
			)
			if err := nt.task(); err != nil {
				m.logger.Error("shutdown | task failed",
					zap.String("task", nt.name),
					zap.Error(err),
				)
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Error("shutdown | timed out waiting for cleanup tasks",
			zap.Duration("timeout", m.timeout),
		)
		return ctx.Err()
	}
}
