package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"hybridauth/internal/apierr"
)

// ephemeralNodeKeys are per-node fields a visual editor's canvas state
// attaches (selection, drag state, measured render size) that have no place
// in the persisted document — only the author's actual graph does.
var ephemeralNodeKeys = []string{"selected", "dragging", "positionAbsolute", "width", "height"}

// NormalizeForStorage strips ephemeral canvas-state keys from every node
// before a graph is persisted, so two saves that differ only in which node
// was last clicked don't produce a spurious version history. Falls back to
// returning raw unchanged if it is not valid JSON — Validate is what
// rejects malformed graphs, this is best-effort tidying, not validation.
func NormalizeForStorage(raw json.RawMessage) json.RawMessage {
	if !gjson.ValidBytes(raw) {
		return raw
	}
	out := []byte(raw)
	count := len(gjson.GetBytes(out, "nodes").Array())
	for i := 0; i < count; i++ {
		for _, key := range ephemeralNodeKeys {
			path := fmt.Sprintf("nodes.%d.%s", i, key)
			if !gjson.GetBytes(out, path).Exists() {
				continue
			}
			cleaned, err := sjson.DeleteBytes(out, path)
			if err != nil {
				return raw
			}
			out = cleaned
		}
	}
	return json.RawMessage(out)
}

// Validate is the Graph Validator (C6): structural validation of an
// authored node/edge document per spec §4.6. It never mutates the graph;
// diagnostics describe every failure found, not just the first.
func Validate(raw json.RawMessage) (graphDoc, []Diagnostic, error) {
	var doc graphDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return graphDoc{}, nil, apierr.NewInvalid("graph is not valid JSON: %v", err)
	}

	var diags []Diagnostic
	if len(doc.Nodes) == 0 {
		diags = append(diags, Diagnostic{Code: "NO_NODES", Message: "graph must contain at least one node"})
	}

	seen := make(map[string]bool, len(doc.Nodes))
	hasStart := false
	for _, n := range doc.Nodes {
		if n.ID == "" {
			diags = append(diags, Diagnostic{Code: "EMPTY_NODE_ID", Message: "node has an empty id"})
			continue
		}
		if seen[n.ID] {
			diags = append(diags, Diagnostic{Code: "DUPLICATE_NODE_ID", Message: fmt.Sprintf("duplicate node id %q", n.ID), NodeID: n.ID})
			continue
		}
		seen[n.ID] = true
		if strings.EqualFold(n.Type, "start") {
			hasStart = true
		}
	}
	if !hasStart {
		diags = append(diags, Diagnostic{Code: "NO_START_NODE", Message: "graph must declare at least one start node"})
	}

	for _, e := range doc.Edges {
		if !seen[e.Source] {
			diags = append(diags, Diagnostic{Code: "DANGLING_EDGE_SOURCE", Message: fmt.Sprintf("edge %q references unknown source %q", e.ID, e.Source)})
		}
		if !seen[e.Target] {
			diags = append(diags, Diagnostic{Code: "DANGLING_EDGE_TARGET", Message: fmt.Sprintf("edge %q references unknown target %q", e.ID, e.Target)})
		}
	}

	if len(diags) > 0 {
		return graphDoc{}, diags, apierr.NewInvalid("graph failed structural validation")
	}
	return doc, nil, nil
}

// ExportDOT renders the compiled stage/route graph of a workflow as a
// Graphviz DOT document, per SPEC_FULL §4.11. It operates on the compiled
// representation, never the raw authoring JSON.
func ExportDOT(workflowName string, stages []WorkflowStage, routes []ConditionalRoute) (string, error) {
	g := gographviz.NewGraph()
	graphName := sanitizeID(workflowName)
	if err := g.SetName(graphName); err != nil {
		return "", apierr.NewInternal(err, "set graph name")
	}
	if err := g.SetDir(true); err != nil {
		return "", apierr.NewInternal(err, "set graph direction")
	}

	stageByID := make(map[int64]WorkflowStage, len(stages))
	for _, s := range stages {
		stageByID[s.ID] = s
		nodeName := dotNodeName(s.ID)
		label := fmt.Sprintf("\"%d: %s (%s)\"", s.OrderIndex, s.NodeID, s.NodeType)
		if err := g.AddNode(graphName, nodeName, map[string]string{"label": label}); err != nil {
			return "", apierr.NewInternal(err, "add node %s", nodeName)
		}
	}

	for _, s := range stages {
		if s.NextStageID == nil {
			continue
		}
		if _, ok := stageByID[*s.NextStageID]; !ok {
			continue
		}
		if err := g.AddEdge(dotNodeName(s.ID), dotNodeName(*s.NextStageID), true, nil); err != nil {
			return "", apierr.NewInternal(err, "add default edge from %d", s.ID)
		}
	}

	for _, r := range routes {
		if _, ok := stageByID[r.FromStageID]; !ok {
			continue
		}
		if _, ok := stageByID[r.ToStageID]; !ok {
			continue
		}
		label := r.Label
		if label == "" {
			label = fmt.Sprintf("%s %s %s", r.Field, r.Operator, r.Value)
		}
		attrs := map[string]string{"label": fmt.Sprintf("%q", label)}
		if err := g.AddEdge(dotNodeName(r.FromStageID), dotNodeName(r.ToStageID), true, attrs); err != nil {
			return "", apierr.NewInternal(err, "add conditional edge from %d to %d", r.FromStageID, r.ToStageID)
		}
	}

	return g.String(), nil
}

func dotNodeName(id int64) string { return fmt.Sprintf("stage_%d", id) }

func sanitizeID(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "workflow"
	}
	return b.String()
}
