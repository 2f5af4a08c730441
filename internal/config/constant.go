package config

var DEFAULT_CONFIG_YAML = `
# labelsched Configuration File
# Environment: development, staging, production
# labelsched.yaml
app_name: "labelsched"
environment: "development"
log_level: "info"

docker:
  socket_path: /var/run/docker.sock
  label_prefix: "scheduler."
  inspect_rate: 20       # container inspections per second
  inspect_burst: 10
  reconnect_backoff: 1s
  reconnect_backoff_max: 30s
  max_reconnects: 10     # consecutive failures before giving up

scheduler:
  tick_interval: 1s
  timezone: ""           # empty uses TZ / system local

exec:
  shell: /bin/sh
  timeout: 0s            # 0 means no timeout

shutdown:
  timeout: 30s

logger:
  level: "info"
  format: "text"    # or "json"
  output: "stdout"  # stdout, stderr, file
  file_path: ""     # used with output: file; auto-detected if empty
`
