package config

// Default values applied for fields missing from mend.yaml.
const (
	DefaultStepTimeoutMS   = 300000 // 5 minutes per verification step
	DefaultScoutTimeoutMS  = 60000  // 1 minute per scout query
	DefaultCPULimit        = 4
	DefaultMemoryGB        = 8
	DefaultMaxRuns         = 20
	DefaultMaxAgeDays      = 14
	DefaultArtifactDirName = ".mend"
)

// Step is a single named verification command. Steps run in order
// inside the sandbox and the pipeline stops at the first failure.
type Step struct {
	Name    string `koanf:"name" yaml:"name"`
	Command string `koanf:"command" yaml:"command"`
}

// Verification configures the sandboxed pipeline.
type Verification struct {
	ContainerImage string `koanf:"container_image" yaml:"container_image"`
	Steps          []Step `koanf:"steps" yaml:"steps"`
}

// Timeouts holds per-step and per-query timeout overrides in
// milliseconds.
type Timeouts struct {
	VerificationStepMS int `koanf:"verification_step_ms" yaml:"verification_step_ms"`
	ScoutQueryMS       int `koanf:"scout_query_ms" yaml:"scout_query_ms"`
}

// Limits caps the sandbox container resources.
type Limits struct {
	CPUs     int `koanf:"cpus" yaml:"cpus"`
	MemoryGB int `koanf:"memory_gb" yaml:"memory_gb"`
}

// Retention bounds how many verification runs are kept on disk.
type Retention struct {
	MaxRuns    int `koanf:"max_runs" yaml:"max_runs"`
	MaxAgeDays int `koanf:"max_age_days" yaml:"max_age_days"`
}

// Implementer configures the external change-proposal command. The
// command receives a JSON request on stdin and must print a JSON
// change set on stdout.
type Implementer struct {
	Command string `koanf:"command" yaml:"command"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Config represents a validated mend.yaml descriptor. It is loaded and
// validated once at startup; a malformed configuration is rejected
// before any task executes.
type Config struct {
	Verification Verification `koanf:"verification" yaml:"verification"`
	Timeouts     Timeouts     `koanf:"timeouts" yaml:"timeouts"`
	Limits       Limits       `koanf:"limits" yaml:"limits"`
	Retention    Retention    `koanf:"retention" yaml:"retention"`
	Implementer  Implementer  `koanf:"implementer" yaml:"implementer"`
	ArtifactDir  string       `koanf:"artifact_dir" yaml:"artifact_dir"`
	Log          Log          `koanf:"log" yaml:"log"`
}

// Default returns a Config with every optional field at its default.
// The verification section has no default: image and steps must come
// from the config file.
func Default() Config {
	return Config{
		Timeouts: Timeouts{
			VerificationStepMS: DefaultStepTimeoutMS,
			ScoutQueryMS:       DefaultScoutTimeoutMS,
		},
		Limits: Limits{
			CPUs:     DefaultCPULimit,
			MemoryGB: DefaultMemoryGB,
		},
		Retention: Retention{
			MaxRuns:    DefaultMaxRuns,
			MaxAgeDays: DefaultMaxAgeDays,
		},
		ArtifactDir: DefaultArtifactDirName,
		Log:         Log{Level: "info", Format: "console"},
	}
}
