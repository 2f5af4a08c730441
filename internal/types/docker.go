package types

import "time"

// DockerConfig for the runtime connection and event watcher
type DockerConfig struct {
	SocketPath          string        `mapstructure:"socket_path"`
	LabelPrefix         string        `mapstructure:"label_prefix"`
	InspectRate         float64       `mapstructure:"inspect_rate"`
	InspectBurst        int           `mapstructure:"inspect_burst"`
	ReconnectBackoff    time.Duration `mapstructure:"reconnect_backoff"`
	ReconnectBackoffMax time.Duration `mapstructure:"reconnect_backoff_max"`
	MaxReconnects       int           `mapstructure:"max_reconnects"`
}
