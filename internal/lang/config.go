package lang

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ConfigSuffix is the filename suffix configuration files must carry.
const ConfigSuffix = ".sf.hcl"

// Config is the decoded declaration set for one working directory.
type Config struct {
	Variables []*Variable
	Resources []*Resource
	Outputs   []*Output
	Pipelines []*Pipeline
}

// Resource is one declared resource node. Attribute expressions stay
// unevaluated until apply so references can become graph edges first and
// value substitutions later.
type Resource struct {
	Type     string
	Name     string
	Provider string

	// Condition gates the node's presence; nil means always included.
	Condition hcl.Expression

	// Branch names a mutually exclusive group. Exactly one member of a
	// group may have a true condition.
	Branch string

	// Timeout bounds a single apply/delete operation, e.g. "5m".
	Timeout string

	DependsOn []string

	Attrs map[string]hcl.Expression

	// RawAttrs carries the source text of each attribute expression; it is
	// what gets hashed to detect declaration changes between runs.
	RawAttrs map[string]string

	DeclRange hcl.Range
}

// Addr returns the resource address (type.name).
func (r *Resource) Addr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// Output is a named expression over resource attributes.
type Output struct {
	Name      string
	Value     hcl.Expression
	DeclRange hcl.Range
}

// Pipeline is a declared build pipeline: an ordered set of steps with
// explicit wait_for dependencies and expression-based artifact references.
type Pipeline struct {
	Name      string
	Steps     []*Step
	DeclRange hcl.Range
}

// Step is one build pipeline step declaration.
type Step struct {
	ID        string
	Action    string
	WaitFor   []string
	Args      map[string]hcl.Expression
	DeclRange hcl.Range
}

// Pipeline returns the pipeline declared under name, or nil.
func (c *Config) Pipeline(name string) *Pipeline {
	for _, p := range c.Pipelines {
		if p.Name == name {
			return p
		}
	}
	return nil
}

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "variable", LabelNames: []string{"name"}},
		{Type: "resource", LabelNames: []string{"type", "name"}},
		{Type: "output", LabelNames: []string{"name"}},
		{Type: "pipeline", LabelNames: []string{"name"}},
	},
}

// LoadDir parses every *.sf.hcl file in dir (sorted by name for a stable
// declaration order) and merges them into one Config.
func LoadDir(dir string) (*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ConfigSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", ConfigSuffix, dir)
	}

	return LoadFiles(paths...)
}

// LoadFiles parses the given configuration files into one Config.
func LoadFiles(paths ...string) (*Config, error) {
	parser := hclparse.NewParser()
	cfg := &Config{}

	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := parseFile(parser, path, src, cfg); err != nil {
			return nil, err
		}
	}

	if err := checkDuplicates(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses a single in-memory configuration source. Used by tests.
func ParseConfig(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	cfg := &Config{}
	if err := parseFile(parser, filename, src, cfg); err != nil {
		return nil, err
	}
	if err := checkDuplicates(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFile(parser *hclparse.Parser, filename string, src []byte, cfg *Config) error {
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return diagsToError(filename, diags)
	}

	content, diags := file.Body.Content(rootSchema)
	if diags.HasErrors() {
		return diagsToError(filename, diags)
	}

	for _, block := range content.Blocks {
		switch block.Type {
		case "variable":
			v, err := decodeVariable(block)
			if err != nil {
				return err
			}
			cfg.Variables = append(cfg.Variables, v)
		case "resource":
			r, err := decodeResource(block, src)
			if err != nil {
				return err
			}
			cfg.Resources = append(cfg.Resources, r)
		case "output":
			o, err := decodeOutput(block)
			if err != nil {
				return err
			}
			cfg.Outputs = append(cfg.Outputs, o)
		case "pipeline":
			p, err := decodePipeline(block)
			if err != nil {
				return err
			}
			cfg.Pipelines = append(cfg.Pipelines, p)
		}
	}
	return nil
}

func decodeResource(block *hcl.Block, src []byte) (*Resource, error) {
	body, ok := block.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: resource body is not native syntax", block.DefRange)
	}

	r := &Resource{
		Type:      block.Labels[0],
		Name:      block.Labels[1],
		Attrs:     make(map[string]hcl.Expression),
		RawAttrs:  make(map[string]string),
		DeclRange: block.DefRange,
	}

	for name, attr := range body.Attributes {
		switch name {
		case "provider":
			s, err := stringAttr(attr)
			if err != nil {
				return nil, err
			}
			r.Provider = s
		case "branch":
			s, err := stringAttr(attr)
			if err != nil {
				return nil, err
			}
			r.Branch = s
		case "timeout":
			s, err := stringAttr(attr)
			if err != nil {
				return nil, err
			}
			r.Timeout = s
		case "condition":
			r.Condition = attr.Expr
		case "depends_on":
			deps, err := addrListAttr(attr)
			if err != nil {
				return nil, err
			}
			r.DependsOn = deps
		default:
			r.Attrs[name] = attr.Expr
			r.RawAttrs[name] = exprSource(src, attr.Expr)
		}
	}

	if r.Provider == "" {
		return nil, fmt.Errorf("%s: resource %s is missing the required provider attribute", block.DefRange, r.Addr())
	}
	return r, nil
}

func decodeOutput(block *hcl.Block) (*Output, error) {
	body, ok := block.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: output body is not native syntax", block.DefRange)
	}
	attr, ok := body.Attributes["value"]
	if !ok {
		return nil, fmt.Errorf("%s: output %q is missing the required value attribute", block.DefRange, block.Labels[0])
	}
	return &Output{
		Name:      block.Labels[0],
		Value:     attr.Expr,
		DeclRange: block.DefRange,
	}, nil
}

func decodePipeline(block *hcl.Block) (*Pipeline, error) {
	body, ok := block.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: pipeline body is not native syntax", block.DefRange)
	}

	p := &Pipeline{
		Name:      block.Labels[0],
		DeclRange: block.DefRange,
	}

	for _, inner := range body.Blocks {
		if inner.Type != "step" {
			return nil, fmt.Errorf("%s: unsupported block %q in pipeline %q", inner.DefRange(), inner.Type, p.Name)
		}
		if len(inner.Labels) != 1 {
			return nil, fmt.Errorf("%s: step blocks take exactly one label", inner.DefRange())
		}
		step, err := decodeStep(inner)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, step)
	}

	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("%s: pipeline %q declares no steps", block.DefRange, p.Name)
	}
	return p, nil
}

func decodeStep(block *hclsyntax.Block) (*Step, error) {
	s := &Step{
		ID:        block.Labels[0],
		Args:      make(map[string]hcl.Expression),
		DeclRange: block.DefRange(),
	}

	for name, attr := range block.Body.Attributes {
		switch name {
		case "action":
			v, err := stringAttr(attr)
			if err != nil {
				return nil, err
			}
			s.Action = v
		case "wait_for":
			ids, err := stringListAttr(attr)
			if err != nil {
				return nil, err
			}
			s.WaitFor = ids
		default:
			s.Args[name] = attr.Expr
		}
	}

	if s.Action == "" {
		return nil, fmt.Errorf("%s: step %q is missing the required action attribute", s.DeclRange, s.ID)
	}
	return s, nil
}

func checkDuplicates(cfg *Config) error {
	seenVars := make(map[string]bool)
	for _, v := range cfg.Variables {
		if seenVars[v.Name] {
			return fmt.Errorf("%s: duplicate variable %q", v.DeclRange, v.Name)
		}
		seenVars[v.Name] = true
	}

	seenRes := make(map[string]bool)
	for _, r := range cfg.Resources {
		if seenRes[r.Addr()] {
			return fmt.Errorf("%s: duplicate resource %q", r.DeclRange, r.Addr())
		}
		seenRes[r.Addr()] = true
	}

	seenOut := make(map[string]bool)
	for _, o := range cfg.Outputs {
		if seenOut[o.Name] {
			return fmt.Errorf("%s: duplicate output %q", o.DeclRange, o.Name)
		}
		seenOut[o.Name] = true
	}

	for _, p := range cfg.Pipelines {
		seenSteps := make(map[string]bool)
		for _, s := range p.Steps {
			if seenSteps[s.ID] {
				return fmt.Errorf("%s: duplicate step %q in pipeline %q", s.DeclRange, s.ID, p.Name)
			}
			seenSteps[s.ID] = true
		}
	}
	return nil
}

// stringAttr evaluates an attribute that must be a constant string.
func stringAttr(attr *hclsyntax.Attribute) (string, error) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("%s: attribute %q must be a constant string: %s", attr.SrcRange, attr.Name, diags.Error())
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("%s: attribute %q must be a string", attr.SrcRange, attr.Name)
	}
	return val.AsString(), nil
}

// stringListAttr evaluates an attribute that must be a constant list of strings.
func stringListAttr(attr *hclsyntax.Attribute) ([]string, error) {
	exprs, diags := hcl.ExprList(attr.Expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: attribute %q must be a list: %s", attr.SrcRange, attr.Name, diags.Error())
	}
	var out []string
	for _, e := range exprs {
		val, diags := e.Value(nil)
		if diags.HasErrors() || val.Type() != cty.String {
			return nil, fmt.Errorf("%s: attribute %q entries must be constant strings", attr.SrcRange, attr.Name)
		}
		out = append(out, val.AsString())
	}
	return out, nil
}

// addrListAttr decodes a depends_on list: entries may be bare traversals
// (aws_vpc.main) or quoted addresses ("aws_vpc.main").
func addrListAttr(attr *hclsyntax.Attribute) ([]string, error) {
	exprs, diags := hcl.ExprList(attr.Expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: depends_on must be a list: %s", attr.SrcRange, diags.Error())
	}
	var out []string
	for _, e := range exprs {
		if trav, diags := hcl.AbsTraversalForExpr(e); !diags.HasErrors() {
			addr, err := traversalAddr(trav)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", attr.SrcRange, err)
			}
			out = append(out, addr)
			continue
		}
		val, diags := e.Value(nil)
		if diags.HasErrors() || val.Type() != cty.String {
			return nil, fmt.Errorf("%s: depends_on entries must be resource references", attr.SrcRange)
		}
		out = append(out, val.AsString())
	}
	return out, nil
}

// exprSource slices the original source text of an expression; the raw text
// is the stable identity used for change detection.
func exprSource(src []byte, expr hcl.Expression) string {
	rng := expr.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte > rng.End.Byte {
		return ""
	}
	return string(src[rng.Start.Byte:rng.End.Byte])
}

func diagsToError(filename string, diags hcl.Diagnostics) error {
	return fmt.Errorf("failed to parse %s: %s", filename, diags.Error())
}
