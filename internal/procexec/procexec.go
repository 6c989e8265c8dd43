package procexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mediachain/internal/chain"
	"mediachain/internal/config"
	"mediachain/internal/logging"
	"mediachain/internal/services"
	"mediachain/internal/textutil"
)

// RequestSchema tags the input file handed to stage processes.
const RequestSchema = "mediachain.request/v1"

// Artifact is the contract every stage output satisfies.
type Artifact interface {
	SchemaVersion() string
	Validate() error
}

// CommandRunner runs name with args.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Request is the JSON document written for the stage process.
type Request struct {
	SchemaVersion string            `json:"schema_version"`
	Step          string            `json:"step"`
	JobID         string            `json:"job_id"`
	EpisodeID     string            `json:"episode_id,omitempty"`
	ContentHash   string            `json:"content_hash"`
	ConfigHash    string            `json:"config_hash"`
	Paths         map[string]string `json:"paths"`
	Settings      map[string]any    `json:"settings,omitempty"`
	Inputs        map[string]any    `json:"inputs"`
}

// Options configures one process-backed stage.
type Options struct {
	Step    string
	Label   string
	Command string
	Args    []string
	Schema  string
	// Inputs names the upstream outputs written to the request. Empty writes
	// every available output.
	Inputs        []string
	Settings      map[string]any
	Timeout       time.Duration
	WorkDir       string
	KeepWorkFiles bool
}

// OptionsFromConfig builds primary options for a configured stage.
func OptionsFromConfig(cfg *config.Config, step, schema string, inputs ...string) (Options, bool) {
	stage, ok := cfg.Stage(step)
	if !ok {
		return Options{}, false
	}
	return Options{
		Step:          step,
		Command:       stage.Command,
		Args:          stage.Args,
		Schema:        schema,
		Inputs:        inputs,
		Settings:      stage.Settings,
		Timeout:       time.Duration(stage.TimeoutSeconds) * time.Second,
		WorkDir:       cfg.Paths.WorkDir,
		KeepWorkFiles: cfg.Stages.KeepWorkFiles,
	}, true
}

// Fallback derives options for the stage's fallback command, if configured.
func (o Options) Fallback(stage config.Stage, label string) (Options, bool) {
	if strings.TrimSpace(stage.FallbackCommand) == "" {
		return Options{}, false
	}
	fallback := o
	fallback.Label = label
	fallback.Command = stage.FallbackCommand
	fallback.Args = stage.FallbackArgs
	return fallback, true
}

// Executor runs one stage process and decodes its artifact as T.
type Executor[T Artifact] struct {
	opts     Options
	runner   CommandRunner
	fallback *Executor[T]
	annotate func(T, string) T
	logger   *slog.Logger
}

// New returns an executor for opts.
func New[T Artifact](opts Options, logger *slog.Logger) *Executor[T] {
	return &Executor[T]{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "procexec"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Executor[T]) WithCommandRunner(runner CommandRunner) *Executor[T] {
	e.runner = runner
	if e.fallback != nil {
		e.fallback.WithCommandRunner(runner)
	}
	return e
}

// WithFallback sets the executor attempted when this one fails.
func (e *Executor[T]) WithFallback(fallback *Executor[T]) *Executor[T] {
	e.fallback = fallback
	if fallback != nil && fallback.runner == nil {
		fallback.runner = e.runner
	}
	return e
}

// WithAnnotate sets a hook that labels a decoded artifact with the producing
// executor's label.
func (e *Executor[T]) WithAnnotate(fn func(T, string) T) *Executor[T] {
	e.annotate = fn
	if e.fallback != nil {
		e.fallback.WithAnnotate(fn)
	}
	return e
}

// Run executes the stage. It matches registry.ExecFunc.
func (e *Executor[T]) Run(ctx context.Context, cc chain.Context, inputs chain.Inputs) (T, error) {
	result, err := e.runOnce(ctx, cc, inputs)
	if err == nil || e.fallback == nil || ctx.Err() != nil {
		return result, err
	}
	logging.WarnWithContext(logging.WithContext(ctx, e.logger), "primary stage executor failed; trying fallback", "stage_fallback",
		logging.String(logging.FieldStep, e.opts.Step),
		logging.String("primary", e.opts.Command),
		logging.String("fallback", e.fallback.opts.Command),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the primary stage command"),
		logging.String(logging.FieldImpact, "output produced by the fallback executor"),
	)
	result, fallbackErr := e.fallback.Run(ctx, cc, inputs)
	if fallbackErr != nil {
		return result, errors.Join(err, fallbackErr)
	}
	return result, nil
}

func (e *Executor[T]) runOnce(ctx context.Context, cc chain.Context, inputs chain.Inputs) (T, error) {
	var zero T
	step := e.opts.Step
	if strings.TrimSpace(e.opts.Command) == "" {
		return zero, services.Wrap(services.ErrConfiguration, step, "run stage", "command is not configured", nil)
	}

	dir := filepath.Join(e.opts.WorkDir, textutil.SafeName(cc.JobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zero, services.Wrap(services.ErrExternalTool, step, "prepare work dir", "", err)
	}
	base := textutil.SafeName(step)
	if e.opts.Label != "" {
		base += "." + textutil.SafeName(e.opts.Label)
	}
	inputPath := filepath.Join(dir, textutil.SafeName(step)+".input.json")
	outputPath := filepath.Join(dir, base+".output.json")
	_ = os.Remove(outputPath)

	if err := e.writeRequest(inputPath, cc, inputs); err != nil {
		return zero, err
	}

	runCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.opts.Args...), "--input", inputPath, "--output", outputPath)
	started := time.Now()
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("stage process started",
		logging.String(logging.FieldStep, step),
		logging.String("command", e.opts.Command),
		logging.String("label", e.opts.Label),
	)
	if err := e.run(runCtx, e.opts.Command, args...); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, services.Wrap(services.ErrTimeout, step, "run stage",
				fmt.Sprintf("%s exceeded %s", e.opts.Command, e.opts.Timeout), err)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, services.Wrap(services.ErrExternalTool, step, "run stage", e.opts.Command, err)
	}

	result, err := e.readOutput(outputPath)
	if err != nil {
		return zero, err
	}
	if e.annotate != nil {
		label := e.opts.Label
		if label == "" {
			label = "primary"
		}
		result = e.annotate(result, label)
	}
	logger.Debug("stage process finished",
		logging.String(logging.FieldStep, step),
		logging.Duration("duration", time.Since(started)),
	)
	if !e.opts.KeepWorkFiles {
		_ = os.Remove(inputPath)
		_ = os.Remove(outputPath)
	}
	return result, nil
}

func (e *Executor[T]) writeRequest(path string, cc chain.Context, inputs chain.Inputs) error {
	selected := make(map[string]any)
	if len(e.opts.Inputs) == 0 {
		for name, value := range inputs {
			selected[name] = value
		}
	} else {
		for _, name := range e.opts.Inputs {
			value, ok := inputs[name]
			if !ok {
				return services.Wrap(services.ErrMissingInput, e.opts.Step, "write request",
					fmt.Sprintf("upstream output %q not available", name), nil)
			}
			selected[name] = value
		}
	}
	req := Request{
		SchemaVersion: RequestSchema,
		Step:          e.opts.Step,
		JobID:         cc.JobID,
		EpisodeID:     cc.EpisodeID,
		ContentHash:   cc.ContentHash,
		ConfigHash:    cc.ConfigHash,
		Paths:         cc.Paths(),
		Settings:      e.opts.Settings,
		Inputs:        selected,
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, e.opts.Step, "encode request", "", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, e.opts.Step, "write request", "", err)
	}
	return nil
}

func (e *Executor[T]) readOutput(path string) (T, error) {
	var result T
	step := e.opts.Step
	data, err := os.ReadFile(path)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, step, "read output", "stage produced no output file", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, services.Wrap(services.ErrValidation, step, "decode output", "", err)
	}
	if e.opts.Schema != "" && result.SchemaVersion() != e.opts.Schema {
		return result, services.Wrap(services.ErrValidation, step, "check schema",
			fmt.Sprintf("schema version %q, want %q", result.SchemaVersion(), e.opts.Schema), nil)
	}
	if err := result.Validate(); err != nil {
		return result, services.Wrap(services.ErrValidation, step, "validate output", "", err)
	}
	return result, nil
}

// run executes a command, using the custom runner if set.
func (e *Executor[T]) run(ctx context.Context, name string, args ...string) error {
	if e.runner != nil {
		return e.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
