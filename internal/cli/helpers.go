package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/lang"
	"github.com/stackform-io/stackform/internal/provider"
	"github.com/stackform-io/stackform/internal/state"
)

const varEnvPrefix = "STACKFORM_VAR_"

// resolveDir turns an optional positional argument into the configuration
// directory.
func resolveDir(args []string) (string, error) {
	if len(args) == 0 {
		return os.Getwd()
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", args[0])
	}
	return abs, nil
}

// collectVars merges variable values from *.sfvars.hcl files, STACKFORM_VAR_*
// environment variables, and --var flags, in increasing precedence.
func collectVars(fileVars, flagVars map[string]string) map[string]string {
	set := make(map[string]string, len(fileVars))
	for k, v := range fileVars {
		set[k] = v
	}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, varEnvPrefix) {
			continue
		}
		k, v, _ := strings.Cut(strings.TrimPrefix(kv, varEnvPrefix), "=")
		set[k] = v
	}
	for k, v := range flagVars {
		set[k] = v
	}
	return set
}

// loadWorkspace parses the configuration in dir, binds variables, builds the
// graph, and resolves conditions. It is the shared front half of every
// command that works with resources.
func loadWorkspace(dir string, flagVars map[string]string) (*lang.Config, *engine.Graph, map[string]cty.Value, error) {
	cfg, err := lang.LoadDir(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	fileVars, err := lang.LoadVarsDir(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	vars, err := lang.BindVariables(cfg.Variables, collectVars(fileVars, flagVars))
	if err != nil {
		return nil, nil, nil, err
	}
	g, err := engine.BuildGraph(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := engine.ResolveConditions(g, vars); err != nil {
		return nil, nil, nil, err
	}
	return cfg, g, vars, nil
}

const (
	backendEnvVar    = "STACKFORM_BACKEND"
	backendEnvPrefix = "STACKFORM_BACKEND_"
)

// backendConfigFromEnv collects STACKFORM_BACKEND_* settings into the
// lower-cased keys the backend constructors expect (BUCKET -> bucket,
// DYNAMODB_TABLE -> dynamodb_table).
func backendConfigFromEnv() map[string]string {
	cfg := make(map[string]string)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, backendEnvPrefix) {
			continue
		}
		k, v, _ := strings.Cut(strings.TrimPrefix(kv, backendEnvPrefix), "=")
		cfg[strings.ToLower(k)] = v
	}
	return cfg
}

// newStateBackend selects the state backend for a run. The default is the
// local file under dir; STACKFORM_BACKEND=s3 selects the remote backend,
// configured through STACKFORM_BACKEND_* variables.
func newStateBackend(dir string) (state.Backend, error) {
	typ := os.Getenv(backendEnvVar)
	if typ == "" || typ == "local" {
		return state.NewManager(filepath.Join(dir, state.DefaultPath)), nil
	}
	return state.NewBackend(&state.BackendConfig{Type: typ, Config: backendConfigFromEnv()})
}

// loadRequiredProviders loads every provider referenced by included config
// resources.
func loadRequiredProviders(registry *provider.Registry, g *engine.Graph) error {
	seen := make(map[string]bool)
	for _, n := range g.Nodes {
		if !n.Included || seen[n.Decl.Provider] {
			continue
		}
		seen[n.Decl.Provider] = true
		if err := registry.LoadProvider(n.Decl.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", n.Decl.Provider, err)
		}
	}
	return nil
}

// loadStateProviders loads providers for resources already in state, needed
// for deletes of resources dropped from the configuration.
func loadStateProviders(registry *provider.Registry, st *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range st.Resources {
		if res.Provider == "" || seen[res.Provider] {
			continue
		}
		seen[res.Provider] = true
		if err := registry.LoadProvider(res.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}
	return nil
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		if change.Action == ir.ActionNoOp {
			continue
		}
		symbol := "~"
		color := "\033[33m"
		switch change.Action {
		case ir.ActionCreate:
			symbol = "+"
			color = "\033[32m"
		case ir.ActionDelete:
			symbol = "-"
			color = "\033[31m"
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, strings.ToLower(string(change.Action)+"d"), "\033[0m")
		fmt.Printf("%s  %s %s {%s\n", color, symbol, change.Address, "\033[0m")
		renderAttributeDiff(change.Diff)
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}
}

func renderAttributeDiff(diff map[string]*ir.AttributeDiff) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		d := diff[key]
		switch d.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %v\033[0m\n", key, formatValue(d.After))
		case "delete":
			fmt.Printf("\033[31m      - %s = %v\033[0m\n", key, formatValue(d.Before))
		case "update":
			fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m\n", key, formatValue(d.Before), formatValue(d.After))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create: %d\n", plan.Summary.Create)
	fmt.Printf("  Update: %d\n", plan.Summary.Update)
	fmt.Printf("  Delete: %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:   %d\n", plan.Summary.NoOp)
}
