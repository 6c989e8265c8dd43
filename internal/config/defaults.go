package config

const (
	defaultConfigPath     = "~/.config/mediachain/config.toml"
	defaultWorkDir        = "~/.local/share/mediachain/work"
	defaultMetadataDir    = "~/.local/share/mediachain/runs"
	defaultLogDir         = "~/.local/share/mediachain/logs"
	defaultCacheSubdir    = "mediachain/steps"
	defaultLedgerFile     = "ledger.db"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultStageVersion   = "1.0.0"
	defaultStageTimeout   = 3600
	cacheDirEnv           = "MEDIACHAIN_CACHE_DIR"
	defaultDiarizeCommand = "mediachain-diarize"
	defaultExtractCommand = "mediachain-extract"
	defaultExtractRules   = "mediachain-extract-rules"
	defaultResolveCommand = "mediachain-resolve"
	defaultScoreCommand   = "mediachain-score"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			MetadataDir: defaultMetadataDir,
			LogDir:      defaultLogDir,
		},
		Cache: Cache{
			Enabled: true,
			Dir:     defaultCacheDir(),
		},
		Stages: Stages{
			Diarize: Stage{Command: defaultDiarizeCommand, Version: defaultStageVersion, TimeoutSeconds: defaultStageTimeout},
			Extract: Stage{
				Command:         defaultExtractCommand,
				Version:         defaultStageVersion,
				TimeoutSeconds:  defaultStageTimeout,
				FallbackCommand: defaultExtractRules,
			},
			Resolve: Stage{Command: defaultResolveCommand, Version: defaultStageVersion, TimeoutSeconds: defaultStageTimeout},
			Score:   Stage{Command: defaultScoreCommand, Version: defaultStageVersion, TimeoutSeconds: defaultStageTimeout},
		},
		Quality: Quality{
			MinSegments:             5,
			MinSpeakers:             1,
			MaxSpeakers:             12,
			MinEntities:             3,
			MinEntityConfidence:     0.6,
			HighConfidence:          0.8,
			HighRelevance:           0.7,
			MinTopics:               1,
			MinResolutionRate:       0.5,
			MinResolutionConfidence: 0.6,
			MinScored:               1,
			HighScore:               0.75,
		},
		Ledger: Ledger{
			Enabled: false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
