package procexec_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediachain/internal/chain"
	"mediachain/internal/logging"
	"mediachain/internal/procexec"
	"mediachain/internal/services"
	"mediachain/internal/stages"
)

func testContext(t *testing.T) chain.Context {
	t.Helper()
	cc, err := chain.NewContext(chain.ContextOptions{
		JobID:       "job-42",
		EpisodeID:   "ep-7",
		ContentHash: "H1",
		ConfigHash:  "C1",
		Paths:       map[string]string{"audio": "/media/ep7.wav"},
	})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return cc
}

func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// writingRunner returns a runner that writes payload to the --output path and
// captures the request it was handed.
func writingRunner(t *testing.T, payload any, captured *procexec.Request) procexec.CommandRunner {
	return func(_ context.Context, _ string, args ...string) error {
		if captured != nil {
			data, err := os.ReadFile(flagValue(args, "--input"))
			if err != nil {
				t.Errorf("read request: %v", err)
				return err
			}
			if err := json.Unmarshal(data, captured); err != nil {
				t.Errorf("decode request: %v", err)
				return err
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return os.WriteFile(flagValue(args, "--output"), data, 0o644)
	}
}

func extractionOptions(workDir string) procexec.Options {
	return procexec.Options{
		Step:    "extract",
		Label:   stages.ExtractorModel,
		Command: "mediachain-extract",
		Args:    []string{"--model", "large"},
		Schema:  stages.ExtractionSchema,
		Inputs:  []string{"diarize"},
		WorkDir: workDir,
	}
}

func validExtraction() stages.Extraction {
	return stages.Extraction{
		Schema:     stages.ExtractionSchema,
		Candidates: []stages.Candidate{{Text: "Ada Lovelace", Confidence: 0.9, Relevance: 0.8}},
		Topics:     []stages.Topic{{Label: "computing"}},
	}
}

func TestRunWritesRequestAndDecodesOutput(t *testing.T) {
	work := t.TempDir()
	var request procexec.Request
	var gotArgs []string
	runner := writingRunner(t, validExtraction(), &request)
	exec := procexec.New[stages.Extraction](extractionOptions(work), logging.NewNop()).
		WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
			gotArgs = args
			return runner(ctx, name, args...)
		}).
		WithAnnotate(stages.Extraction.WithExtractor)

	inputs := chain.Inputs{
		"diarize": stages.Diarization{Schema: stages.DiarizationSchema},
		"other":   "ignored",
	}
	result, err := exec.Run(context.Background(), testContext(t), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Candidates) != 1 || result.Extractor != stages.ExtractorModel {
		t.Fatalf("unexpected result %+v", result)
	}
	if gotArgs[0] != "--model" || gotArgs[1] != "large" || gotArgs[2] != "--input" {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if request.SchemaVersion != procexec.RequestSchema || request.JobID != "job-42" || request.EpisodeID != "ep-7" {
		t.Fatalf("unexpected request %+v", request)
	}
	if request.Paths["audio"] != "/media/ep7.wav" {
		t.Fatalf("expected paths in request, got %v", request.Paths)
	}
	if _, ok := request.Inputs["diarize"]; !ok || len(request.Inputs) != 1 {
		t.Fatalf("expected only declared inputs, got %v", request.Inputs)
	}
	if want := filepath.Join(work, "job-42", "extract.input.json"); flagValue(gotArgs, "--input") != want {
		t.Fatalf("unexpected input path %q", flagValue(gotArgs, "--input"))
	}
	if _, err := os.Stat(flagValue(gotArgs, "--output")); !os.IsNotExist(err) {
		t.Fatal("expected transient output to be removed")
	}
}

func TestRunKeepsWorkFiles(t *testing.T) {
	opts := extractionOptions(t.TempDir())
	opts.KeepWorkFiles = true
	var outputPath string
	runner := writingRunner(t, validExtraction(), nil)
	exec := procexec.New[stages.Extraction](opts, nil).WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		outputPath = flagValue(args, "--output")
		return runner(ctx, name, args...)
	})
	if _, err := exec.Run(context.Background(), testContext(t), chain.Inputs{"diarize": 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Fatalf("expected output kept: %v", err)
	}
}

func TestRunRejectsSchemaMismatch(t *testing.T) {
	payload := validExtraction()
	payload.Schema = "mediachain.extraction/v0"
	exec := procexec.New[stages.Extraction](extractionOptions(t.TempDir()), nil).
		WithCommandRunner(writingRunner(t, payload, nil))
	_, err := exec.Run(context.Background(), testContext(t), chain.Inputs{"diarize": 1})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunRejectsInvalidArtifact(t *testing.T) {
	payload := validExtraction()
	payload.Candidates[0].Confidence = 3
	exec := procexec.New[stages.Extraction](extractionOptions(t.TempDir()), nil).
		WithCommandRunner(writingRunner(t, payload, nil))
	_, err := exec.Run(context.Background(), testContext(t), chain.Inputs{"diarize": 1})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunMissingDeclaredInput(t *testing.T) {
	called := false
	exec := procexec.New[stages.Extraction](extractionOptions(t.TempDir()), nil).
		WithCommandRunner(func(context.Context, string, ...string) error {
			called = true
			return nil
		})
	_, err := exec.Run(context.Background(), testContext(t), chain.Inputs{})
	if !errors.Is(err, services.ErrMissingInput) || called {
		t.Fatalf("expected missing input before spawning, got %v called=%v", err, called)
	}
}

func TestRunFallsBackToRuleExtractor(t *testing.T) {
	work := t.TempDir()
	primary := extractionOptions(work)
	fallback := primary
	fallback.Label = stages.ExtractorRules
	fallback.Command = "mediachain-extract-rules"
	fallback.Args = nil

	var commands []string
	success := writingRunner(t, validExtraction(), nil)
	runner := func(ctx context.Context, name string, args ...string) error {
		commands = append(commands, name)
		if name == primary.Command {
			return errors.New("model OOM")
		}
		return success(ctx, name, args...)
	}
	exec := procexec.New[stages.Extraction](primary, nil).
		WithFallback(procexec.New[stages.Extraction](fallback, nil)).
		WithCommandRunner(runner).
		WithAnnotate(stages.Extraction.WithExtractor)

	result, err := exec.Run(context.Background(), testContext(t), chain.Inputs{"diarize": 1})
	if err != nil {
		t.Fatalf("expected fallback to succeed: %v", err)
	}
	if result.Extractor != stages.ExtractorRules {
		t.Fatalf("expected rules extractor label, got %q", result.Extractor)
	}
	if len(commands) != 2 || commands[1] != "mediachain-extract-rules" {
		t.Fatalf("unexpected command sequence %v", commands)
	}
}

func TestRunFallbackFailureKeepsBothErrors(t *testing.T) {
	primary := extractionOptions(t.TempDir())
	fallback := primary
	fallback.Command = "rules"
	exec := procexec.New[stages.Extraction](primary, nil).
		WithFallback(procexec.New[stages.Extraction](fallback, nil)).
		WithCommandRunner(func(context.Context, string, ...string) error { return errors.New("exit 1") })
	_, err := exec.Run(context.Background(), testContext(t), chain.Inputs{"diarize": 1})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	opts := extractionOptions(t.TempDir())
	opts.Timeout = 20 * time.Millisecond
	exec := procexec.New[stages.Extraction](opts, nil).
		WithCommandRunner(func(ctx context.Context, _ string, _ ...string) error {
			<-ctx.Done()
			return ctx.Err()
		})
	_, err := exec.Run(context.Background(), testContext(t), chain.Inputs{"diarize": 1})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
}

func TestRunSpawnsRealProcess(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-diarize")
	body := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
printf '%s' '{"schema_version":"` + stages.DiarizationSchema + `","segments":[{"speaker":"S1","start":0,"end":3,"confidence":0.9}],"speakers":[{"id":"S1","talk_time_seconds":3}]}' > "$out"
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	exec := procexec.New[stages.Diarization](procexec.Options{
		Step:    "diarize",
		Command: script,
		Schema:  stages.DiarizationSchema,
		WorkDir: filepath.Join(dir, "work"),
	}, nil)
	result, err := exec.Run(context.Background(), testContext(t), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Segments) != 1 || result.SpeakerCount() != 1 {
		t.Fatalf("unexpected diarization %+v", result)
	}
}

func TestRunRequiresCommand(t *testing.T) {
	exec := procexec.New[stages.Scoring](procexec.Options{Step: "score", WorkDir: t.TempDir()}, nil)
	if _, err := exec.Run(context.Background(), testContext(t), nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
