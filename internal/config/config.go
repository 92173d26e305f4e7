package config

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Output  OutputConfig
	Worker  WorkerConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

type OutputConfig struct {
	Dir string
}

type WorkerConfig struct {
	PollIntervalMS int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Worker: WorkerConfig{
			PollIntervalMS: 500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/docroute/config.json, then applies DOCROUTE_*
// environment overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
