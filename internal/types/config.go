package types

type Config struct {
	AppName     string          `mapstructure:"app_name"`
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Docker      DockerConfig    `mapstructure:"docker"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Exec        ExecConfig      `mapstructure:"exec"`
	Shutdown    ShutdownConfig  `mapstructure:"shutdown"`
	Logger      LoggerConfig    `mapstructure:"logger"`
}
