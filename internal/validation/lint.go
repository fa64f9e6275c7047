package validation

import (
	"context"
	"fmt"

	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/pkg/schema"
)

// RuleScope says whether a rule runs once per document or once per node.
type RuleScope string

const (
	ScopeDocument RuleScope = "document"
	ScopeNode     RuleScope = "node"
)

// LintRule is a CEL predicate that, when true, yields a warning.
// Node-scoped rules see the node under test as `node`.
type LintRule struct {
	ID         string    `json:"id"`
	Scope      RuleScope `json:"scope"`
	Expression string    `json:"expression"`
	Message    string    `json:"message"`
}

// DefaultLintRules are the pipeline checks applied to every document.
// Nodes carry two derived fields: category and missingRequired.
var DefaultLintRules = []LintRule{
	{
		ID:         "missing-source",
		Scope:      ScopeDocument,
		Expression: `size(nodes) > 0 && !nodes.exists(n, n.category == "source")`,
		Message:    "pipeline has no source node",
	},
	{
		ID:         "missing-destination",
		Scope:      ScopeDocument,
		Expression: `size(nodes) > 0 && !nodes.exists(n, n.category == "destination")`,
		Message:    "pipeline has no destination node",
	},
	{
		ID:         "orphan-node",
		Scope:      ScopeNode,
		Expression: `size(nodes) > 1 && !edges.exists(e, e.source == node.id || e.target == node.id)`,
		Message:    "node is not connected",
	},
	{
		ID:         "source-with-input",
		Scope:      ScopeNode,
		Expression: `node.category == "source" && edges.exists(e, e.target == node.id)`,
		Message:    "source node has incoming edges",
	},
	{
		ID:         "destination-with-output",
		Scope:      ScopeNode,
		Expression: `node.category == "destination" && edges.exists(e, e.source == node.id)`,
		Message:    "destination node has outgoing edges",
	},
	{
		ID:         "missing-required-config",
		Scope:      ScopeNode,
		Expression: `size(node.missingRequired) > 0`,
		Message:    "required configuration is empty",
	},
}

// Linter evaluates lint rules with the CEL engine.
type Linter struct {
	cel   *expressions.CELEngine
	types TypeLookup
	rules []LintRule
}

// NewLinter creates a Linter. A nil rules slice means DefaultLintRules.
func NewLinter(cel *expressions.CELEngine, types TypeLookup, rules []LintRule) *Linter {
	if rules == nil {
		rules = DefaultLintRules
	}
	return &Linter{cel: cel, types: types, rules: rules}
}

// Rules returns the active rules.
func (l *Linter) Rules() []LintRule {
	return append([]LintRule(nil), l.rules...)
}

// Lint returns warnings for every rule that matches. A rule that fails to
// evaluate is reported as a warning with its error rather than aborting.
func (l *Linter) Lint(ctx context.Context, doc *schema.WorkflowDocument) (*schema.ValidationResult, error) {
	result := &schema.ValidationResult{}
	data, err := expressions.DocumentData(doc)
	if err != nil {
		return nil, err
	}
	nodes, _ := data["nodes"].([]any)
	if doc != nil {
		l.annotate(doc.Nodes, nodes)
	}

	for _, rule := range l.rules {
		switch rule.Scope {
		case ScopeNode:
			for i, n := range nodes {
				data["node"] = n
				l.apply(ctx, rule, data, fmt.Sprintf("nodes[%d]", i), result)
			}
			delete(data, "node")
		default:
			l.apply(ctx, rule, data, "/", result)
		}
	}
	return result, nil
}

func (l *Linter) apply(ctx context.Context, rule LintRule, data map[string]any, path string, result *schema.ValidationResult) {
	hit, err := l.cel.EvaluateBool(ctx, rule.Expression, data)
	if err != nil {
		result.AddWarning(path, schema.ErrorCode(err), fmt.Sprintf("[%s] rule failed: %v", rule.ID, err))
		return
	}
	if hit {
		result.AddWarning(path, schema.ErrCodeValidation, fmt.Sprintf("[%s] %s", rule.ID, rule.Message))
	}
}

// annotate adds category and missingRequired to each plain node map.
func (l *Linter) annotate(typed []schema.GraphNode, plain []any) {
	for i, raw := range plain {
		m, ok := raw.(map[string]any)
		if !ok || i >= len(typed) {
			continue
		}
		m["category"] = ""
		missing := []any{}
		if desc, err := l.types.Lookup(typed[i].Type); err == nil {
			m["category"] = string(desc.Category)
			for _, f := range desc.ConfigSchema {
				if !f.Required {
					continue
				}
				v, ok := typed[i].Data.Config[f.Key]
				if s, isStr := v.AsString(); !ok || v.IsNull() || (isStr && s == "") {
					missing = append(missing, f.Key)
				}
			}
		}
		m["missingRequired"] = missing
	}
}
