package types

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`     // Log level: debug, info, warn, error
	Format   string `mapstructure:"format"`    // Output format: text, json
	Output   string `mapstructure:"output"`    // Output: stdout, stderr, file
	FilePath string `mapstructure:"file_path"` // File path for file output
}
