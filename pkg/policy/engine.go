package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

// Engine evaluates Rego deny rules against gateway requests. It implements
// gateway.Guard.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
}

// compiledPolicy represents a prepared Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

var _ gateway.Guard = (*Engine)(nil)

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(ctx context.Context, logger *telemetry.Logger) (*Engine, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.NewComponentLogger("policy"),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStore(ctx, &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}
	e.logger.Debugf("Loaded %d built-in policies", len(builtins))

	return e, nil
}

// LoadPolicies loads .rego and .json policy files from paths and adds them to
// the engine. A policy with the name of an existing one replaces it.
func (e *Engine) LoadPolicies(ctx context.Context, fs afero.Fs, paths []string) error {
	loader := NewLoader(fs, e.logger)
	policies, err := loader.LoadFromPaths(paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Infof("Loaded %d policies", len(policies))
	return nil
}

// Evaluate runs every enabled policy against req.
func (e *Engine) Evaluate(ctx context.Context, req gateway.Request) (*Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	decision := &Decision{Allowed: true}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		decision.Evaluated = append(decision.Evaluated, name)

		violations, err := e.evaluatePolicy(ctx, cp, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.WithError(err).WithField("policy", name).Warn("Policy evaluation failed")
			decision.Warnings = append(decision.Warnings, Violation{
				Policy:   name,
				Message:  fmt.Sprintf("evaluation failed: %v", err),
				Severity: SeverityWarning,
			})
			continue
		}

		for _, v := range violations {
			if v.Severity == SeverityError {
				decision.Allowed = false
				decision.Violations = append(decision.Violations, v)
			} else {
				decision.Warnings = append(decision.Warnings, v)
			}
		}
	}

	return decision, nil
}

// Check evaluates req and returns a *DeniedError when it is not allowed.
// Warnings are logged.
func (e *Engine) Check(ctx context.Context, req gateway.Request) error {
	decision, err := e.Evaluate(ctx, req)
	if err != nil {
		return err
	}

	for _, w := range decision.Warnings {
		e.logger.WithField("policy", w.Policy).Warnf("Policy warning: %s", w.Message)
	}

	if !decision.Allowed {
		return &DeniedError{Violations: decision.Violations}
	}
	return nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, req gateway.Request) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(req))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, newViolation(cp.policy, d))
		}
	}

	return violations, nil
}

// newViolation creates a Violation from a deny set member. Members may be
// plain strings or objects with message and severity keys.
func newViolation(policy *Policy, result interface{}) Violation {
	v := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}

	return v
}

// compileAndStore parses the module, prepares its deny query and stores it.
// Callers hold the write lock or own the engine exclusively.
func (e *Engine) compileAndStore(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}

	query := module.Package.Path.String() + ".deny"
	prepared, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query %s: %w", query, err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}
	e.policies[policy.Name] = &compiledPolicy{policy: policy, query: prepared}

	e.logger.Debugf("Compiled policy %s (%s)", policy.Name, query)
	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = false
	e.logger.Infof("Policy %s disabled", name)
	return nil
}
