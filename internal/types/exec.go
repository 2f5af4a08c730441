package types

import "time"

// ExecConfig for command execution inside containers.
// A zero Timeout means executions run unbounded.
type ExecConfig struct {
	Shell   string        `mapstructure:"shell"`
	Timeout time.Duration `mapstructure:"timeout"`
}
