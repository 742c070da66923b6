package policy

import (
	"context"
	"testing"
)

func TestEngineWildcardIncludesEverythingExceptExcludes(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(ctx, []string{"*"}, []string{"com.example.internal.*"})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	covered, err := eng.Covered(ctx, "com.example.Widget")
	if err != nil {
		t.Fatalf("Covered failed: %v", err)
	}
	if !covered {
		t.Fatalf("expected com.example.Widget to be covered under a wildcard include")
	}

	covered, err = eng.Covered(ctx, "com.example.internal.Secret")
	if err != nil {
		t.Fatalf("Covered failed: %v", err)
	}
	if covered {
		t.Fatalf("expected com.example.internal.Secret to be excluded")
	}
}

func TestEnginePrefixIncludeExactMatch(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(ctx, []string{"com.acme.*"}, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	covered, err := eng.Covered(ctx, "com.acme.Order")
	if err != nil || !covered {
		t.Fatalf("expected com.acme.Order covered, got covered=%v err=%v", covered, err)
	}

	covered, err = eng.Covered(ctx, "com.other.Order")
	if err != nil || covered {
		t.Fatalf("expected com.other.Order not covered, got covered=%v err=%v", covered, err)
	}
}

func TestEnginePrefixBoundaryDoesNotCollideWithSimilarPackage(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(ctx, []string{"com.example.*"}, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	covered, err := eng.Covered(ctx, "com.examplefoo.Bar")
	if err != nil {
		t.Fatalf("Covered failed: %v", err)
	}
	if covered {
		t.Fatalf("expected com.examplefoo.Bar NOT covered by com.example.* (trailing-dot boundary)")
	}
}

func TestEngineAgentInternalAlwaysExcluded(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(ctx, []string{"*"}, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	covered, err := eng.Covered(ctx, "runtime.gopark")
	if err != nil {
		t.Fatalf("Covered failed: %v", err)
	}
	if covered {
		t.Fatalf("expected runtime frames to always be excluded regardless of include patterns")
	}
}

func TestEngineNoIncludePatternsExcludesEverything(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(ctx, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	covered, err := eng.Covered(ctx, "anything.AtAll")
	if err != nil {
		t.Fatalf("Covered failed: %v", err)
	}
	if covered {
		t.Fatalf("expected no include patterns to mean nothing is covered")
	}
}
