package types

import "time"

// SchedulerConfig for the tick loop and schedule evaluation
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Timezone     string        `mapstructure:"timezone"`
}
