package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"mediachain/internal/chain"
	"mediachain/internal/logging"
	"mediachain/internal/registry"
	"mediachain/internal/services"
)

type count struct {
	N int `json:"n"`
}

func step(name string, deps ...string) registry.Definition {
	return registry.NewStep(name, "1.0.0", func(context.Context, chain.Context, chain.Inputs) (count, error) {
		return count{N: 1}, nil
	}).DependsOn(deps...)
}

func names(defs []registry.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Name())
	}
	return out
}

func mustRegister(t *testing.T, reg *registry.Registry, defs ...registry.Definition) {
	t.Helper()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("Register %s: %v", def.Name(), err)
		}
	}
}

func TestExecutionOrderRespectsDependencies(t *testing.T) {
	registrations := [][]registry.Definition{
		{step("A"), step("B", "A"), step("C", "B")},
		{step("C", "B"), step("B", "A"), step("A")},
		{step("B", "A"), step("C", "B"), step("A")},
	}
	for _, defs := range registrations {
		reg := registry.New(logging.NewNop())
		mustRegister(t, reg, defs...)
		order, err := reg.ExecutionOrder("", "")
		if err != nil {
			t.Fatalf("ExecutionOrder: %v", err)
		}
		if got := names(order); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
			t.Fatalf("expected A,B,C for registration %v, got %v", names(defs), got)
		}
	}
}

func TestExecutionOrderKeepsRegistrationOrderForIndependents(t *testing.T) {
	reg := registry.New(logging.NewNop())
	mustRegister(t, reg, step("score", "resolve"), step("diarize"), step("extract"), step("resolve", "extract"))
	order, err := reg.ExecutionOrder("", "")
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	want := []string{"extract", "resolve", "score", "diarize"}
	if got := names(order); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExecutionOrderSlicing(t *testing.T) {
	reg := registry.New(logging.NewNop())
	mustRegister(t, reg, step("diarize"), step("extract"), step("resolve", "extract"))

	order, err := reg.ExecutionOrder("resolve", "")
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	if got := names(order); !reflect.DeepEqual(got, []string{"resolve"}) {
		t.Fatalf("expected [resolve], got %v", got)
	}

	order, err = reg.ExecutionOrder("", "extract")
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	if got := names(order); !reflect.DeepEqual(got, []string{"diarize", "extract"}) {
		t.Fatalf("expected [diarize extract], got %v", got)
	}

	if _, err := reg.ExecutionOrder("resolve", "diarize"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for inverted window, got %v", err)
	}
}

func TestExecutionOrderRejectsUnknownNames(t *testing.T) {
	reg := registry.New(logging.NewNop())
	mustRegister(t, reg, step("diarize"))
	for _, tc := range []struct{ start, stop string }{{"missing", ""}, {"", "missing"}} {
		_, err := reg.ExecutionOrder(tc.start, tc.stop)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error for %+v, got %v", tc, err)
		}
	}
}

func TestValidateDetectsBadGraphs(t *testing.T) {
	reg := registry.New(logging.NewNop())
	mustRegister(t, reg, step("a", "b"), step("b", "a"))
	if err := reg.Validate(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected cycle to be a configuration error, got %v", err)
	}

	reg = registry.New(logging.NewNop())
	mustRegister(t, reg, step("a", "ghost"))
	if err := reg.Validate(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected unknown dependency error, got %v", err)
	}
}

func TestRegisterOverwriteKeepsPosition(t *testing.T) {
	reg := registry.New(logging.NewNop())
	mustRegister(t, reg, step("a"), step("b"))
	replacement := registry.NewStep("a", "2.0.0", func(context.Context, chain.Context, chain.Inputs) (count, error) {
		return count{N: 2}, nil
	})
	mustRegister(t, reg, replacement)

	if got := reg.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected names %v", got)
	}
	def, ok := reg.Lookup("a")
	if !ok || def.Version() != "2.0.0" {
		t.Fatalf("expected replacement definition, got %v", def)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 steps, got %d", reg.Len())
	}
	if err := reg.Register(step(" ")); err == nil {
		t.Fatal("expected empty name to be rejected")
	}
}

func TestStepDefinitionErasure(t *testing.T) {
	def := registry.NewStep("count", "1.0.0", func(_ context.Context, _ chain.Context, inputs chain.Inputs) (count, error) {
		return count{N: len(inputs)}, nil
	}).WithExplain(func(c count) any { return map[string]int{"n": c.N} })

	if def.ResultType() != reflect.TypeFor[count]() {
		t.Fatalf("unexpected result type %v", def.ResultType())
	}
	out, err := def.Execute(context.Background(), chain.Context{}, chain.Inputs{"x": 1, "y": 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.(count).N != 2 {
		t.Fatalf("unexpected output %+v", out)
	}
	raw, _ := json.Marshal(out)
	decoded, err := def.Decode(raw)
	if err != nil || decoded.(count).N != 2 {
		t.Fatalf("Decode: %v %+v", err, decoded)
	}
	snap, ok := def.Snapshot(out).(map[string]int)
	if !ok || snap["n"] != 2 {
		t.Fatalf("unexpected snapshot %#v", def.Snapshot(out))
	}
	if def.Snapshot("wrong type") != nil {
		t.Fatal("expected nil snapshot for foreign type")
	}

	failing := registry.NewStep("fail", "1", func(context.Context, chain.Context, chain.Inputs) (count, error) {
		return count{N: 9}, errors.New("boom")
	})
	if out, err := failing.Execute(context.Background(), chain.Context{}, nil); err == nil || out != nil {
		t.Fatalf("expected nil output on error, got %v %v", out, err)
	}
}

type shape interface {
	Area() float64
}

func TestRegisterRejectsUncacheableSteps(t *testing.T) {
	reg := registry.New(logging.NewNop())
	for _, name := range []string{"a/b", `a\b`, "a:b", ".locks", " diarize"} {
		if err := reg.Register(step(name)); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected %q to be rejected, got %v", name, err)
		}
	}

	abstract := registry.NewStep("shape", "1.0.0", func(context.Context, chain.Context, chain.Inputs) (shape, error) {
		return nil, nil
	})
	if err := reg.Register(abstract); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected interface result type to be rejected, got %v", err)
	}

	pointer := registry.NewStep("pointer", "1.0.0", func(context.Context, chain.Context, chain.Inputs) (*count, error) {
		return &count{N: 1}, nil
	})
	mustRegister(t, reg, step("a_b"), pointer)
	if reg.Len() != 2 {
		t.Fatalf("expected only the valid steps, got %v", reg.Names())
	}
}
