package config

import (
	"time"

	"github.com/spf13/viper"
)

// SupervisorConfig controls how `coursemate up` runs the two services.
//
// The API process gets a short head start so its early log output and
// crashes are distinguishable from the web process, then both get a settle
// period before the one-shot readiness check.
type SupervisorConfig struct {
	// LogDir is where the per-child log files (api.log, web.log) are
	// created. Files are truncated fresh on every supervisor run.
	LogDir string `mapstructure:"log_dir" json:"log_dir"`

	// StartGap is the pause between spawning the API and the web process.
	StartGap time.Duration `mapstructure:"start_gap" json:"start_gap"`

	// SettleDelay is the pause after both spawns before readiness probing,
	// giving the services time to bind their ports.
	SettleDelay time.Duration `mapstructure:"settle_delay" json:"settle_delay"`

	// ProbeTimeout bounds each readiness HTTP probe. A stalled service
	// degrades to NotReady instead of hanging startup.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" json:"probe_timeout"`

	// Tick is the monitoring interval for liveness re-checks.
	Tick time.Duration `mapstructure:"tick" json:"tick"`

	// ShutdownGrace is how long a child gets between SIGTERM and SIGKILL.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" json:"shutdown_grace"`
}

// setSupervisorDefaults sets defaults for the supervisor section.
func setSupervisorDefaults() {
	viper.SetDefault("supervisor.log_dir", "logs")
	viper.SetDefault("supervisor.start_gap", 2*time.Second)
	viper.SetDefault("supervisor.settle_delay", 3*time.Second)
	viper.SetDefault("supervisor.probe_timeout", 5*time.Second)
	viper.SetDefault("supervisor.tick", 2*time.Second)
	viper.SetDefault("supervisor.shutdown_grace", 5*time.Second)
}
