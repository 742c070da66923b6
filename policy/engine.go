// Package policy decides whether a fully-qualified class name is covered by
// the agent's instrumentation, given the configured include/exclude
// patterns (spec §6 "Configuration surface" / "Host bytecode-instrumentation
// collaborator"). It compiles those patterns into a generated Rego module
// and evaluates it per class name, the way orchestrator/policy/engine.go
// compiles a tool-policy decision instead of hand-rolled string matching.
package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Engine wraps a prepared Rego query built from a set of include/exclude
// class-name patterns.
type Engine struct {
	query rego.PreparedEvalQuery
}

// agentInternalExcludes mask off the agent's own namespace and the
// runtime's thread-introspection machinery, per spec §6 — these are always
// excluded regardless of configured patterns.
var agentInternalExcludes = []string{
	"github.com/aivorynet/agent-go/*",
	"runtime.*",
}

// NewEngine compiles include/exclude glob patterns ("*", "prefix.*",
// "prefix/*", or an exact name) into a Rego module and prepares it for
// evaluation.
func NewEngine(ctx context.Context, include, exclude []string) (*Engine, error) {
	module := buildModule(include, append(append([]string{}, exclude...), agentInternalExcludes...))

	r := rego.New(
		rego.Query("data.aivory_coverage.covered"),
		rego.Module("aivory_coverage.rego", module),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiling coverage policy: %w", err)
	}

	return &Engine{query: query}, nil
}

// Covered reports whether className is covered by the agent's
// instrumentation: included by at least one include pattern and excluded by
// none.
func (e *Engine) Covered(ctx context.Context, className string) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"class_name": className,
	}))
	if err != nil {
		return false, fmt.Errorf("evaluating coverage policy for %q: %w", className, err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	covered, _ := results[0].Expressions[0].Value.(bool)
	return covered, nil
}

// buildModule translates include/exclude patterns into Rego rules.
// "*" matches everything; "prefix.*" becomes a startswith check on
// "prefix." and "prefix/*" one on "prefix/"; anything else is an exact match.
func buildModule(include, exclude []string) string {
	var b strings.Builder
	b.WriteString("package aivory_coverage\n\n")

	includeAll := false
	for _, p := range include {
		if p == "*" {
			includeAll = true
			break
		}
	}

	if includeAll {
		b.WriteString("included { true }\n\n")
	} else {
		for _, p := range include {
			writePatternRule(&b, "included", p)
		}
		if len(include) == 0 {
			b.WriteString("included { false }\n\n")
		}
	}

	for _, p := range exclude {
		writePatternRule(&b, "excluded", p)
	}
	if len(exclude) == 0 {
		b.WriteString("excluded { false }\n\n")
	}

	b.WriteString("default covered = false\n")
	b.WriteString("covered {\n\tincluded\n\tnot excluded\n}\n")
	return b.String()
}

func writePatternRule(b *strings.Builder, head, pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	if strings.HasSuffix(pattern, ".*") || strings.HasSuffix(pattern, "/*") {
		prefix := pattern[:len(pattern)-1] // keep trailing "." or "/"
		fmt.Fprintf(b, "%s { startswith(input.class_name, %s) }\n\n", head, strconv.Quote(prefix))
		return
	}
	fmt.Fprintf(b, "%s { input.class_name == %s }\n\n", head, strconv.Quote(pattern))
}
