package pipeline

import (
	"log/slog"

	"mediachain/internal/config"
	"mediachain/internal/procexec"
	"mediachain/internal/registry"
	"mediachain/internal/services"
	"mediachain/internal/stages"
)

// fallbackLabel tags outputs from a configured fallback command on stages
// that do not name their own.
const fallbackLabel = "fallback"

// BuildRegistry registers the analysis stages in dependency order. runner may
// be nil to spawn real processes.
func BuildRegistry(cfg *config.Config, logger *slog.Logger, runner procexec.CommandRunner) (*registry.Registry, error) {
	reg := registry.New(logger)

	diarize, diarizeStage, err := stageExecutor[stages.Diarization](cfg, logger, runner,
		config.StageDiarize, stages.DiarizationSchema, "", fallbackLabel)
	if err != nil {
		return nil, err
	}
	extract, extractStage, err := stageExecutor[stages.Extraction](cfg, logger, runner,
		config.StageExtract, stages.ExtractionSchema, stages.ExtractorModel, stages.ExtractorRules, config.StageDiarize)
	if err != nil {
		return nil, err
	}
	extract.WithAnnotate(stages.Extraction.WithExtractor)
	resolve, resolveStage, err := stageExecutor[stages.Resolution](cfg, logger, runner,
		config.StageResolve, stages.ResolutionSchema, "", fallbackLabel, config.StageExtract)
	if err != nil {
		return nil, err
	}
	score, scoreStage, err := stageExecutor[stages.Scoring](cfg, logger, runner,
		config.StageScore, stages.ScoringSchema, "", fallbackLabel, config.StageDiarize, config.StageResolve)
	if err != nil {
		return nil, err
	}

	defs := []registry.Definition{
		registry.NewStep[stages.Diarization](config.StageDiarize, diarizeStage.Version, diarize.Run).
			WithExplain(stages.DiarizationSnapshot),
		registry.NewStep[stages.Extraction](config.StageExtract, extractStage.Version, extract.Run).
			DependsOn(config.StageDiarize).
			WithExplain(stages.ExtractionSnapshot),
		registry.NewStep[stages.Resolution](config.StageResolve, resolveStage.Version, resolve.Run).
			DependsOn(config.StageExtract).
			WithExplain(stages.ResolutionSnapshot),
		registry.NewStep[stages.Scoring](config.StageScore, scoreStage.Version, score.Run).
			DependsOn(config.StageDiarize, config.StageResolve).
			WithExplain(stages.ScoringSnapshot),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// stageExecutor builds the process executor for one configured stage. The
// upstream steps named in deps are written to the stage's request file.
func stageExecutor[T procexec.Artifact](cfg *config.Config, logger *slog.Logger, runner procexec.CommandRunner, name, schema, label, fallback string, deps ...string) (*procexec.Executor[T], config.Stage, error) {
	opts, ok := procexec.OptionsFromConfig(cfg, name, schema, deps...)
	if !ok {
		return nil, config.Stage{}, services.Wrap(services.ErrConfiguration, name, "build stage", "stage is not configured", nil)
	}
	stage, _ := cfg.Stage(name)
	opts.Label = label
	exec := procexec.New[T](opts, logger)
	if fallbackOpts, ok := opts.Fallback(stage, fallback); ok {
		exec.WithFallback(procexec.New[T](fallbackOpts, logger))
	}
	if runner != nil {
		exec.WithCommandRunner(runner)
	}
	return exec, stage, nil
}
