package workflow

import (
	"encoding/json"
	"testing"
)

func TestCompile_ConditionalEdgeProducesRoute(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "n0", "type": "start", "position": map[string]int{"x": -1, "y": 0}},
			{"id": "n1", "type": "CONDITION", "position": map[string]int{"x": 0, "y": 0}},
			{"id": "n2", "type": "APPROVAL", "position": map[string]int{"x": 1, "y": 0}},
			{"id": "n3", "type": "END", "position": map[string]int{"x": 2, "y": 0}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "n1", "target": "n2", "data": map[string]any{
				"condition": true, "condition_field": "amount", "operator": "GT", "condition_value": 1000,
				"label": "large", "priority": 5,
			}},
			{"id": "e2", "source": "n1", "target": "n3"},
		},
	})
	doc, _, err := Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	stages, edges := Compile(doc)
	if len(stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(stages))
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 compiled edges, got %d", len(edges))
	}
	if !edges[0].Conditional {
		t.Fatal("expected first edge to be conditional")
	}
	if edges[0].Field != "amount" || edges[0].Operator != "GT" || edges[0].Priority != 5 {
		t.Fatalf("unexpected conditional edge fields: %+v", edges[0])
	}
	if edges[1].Conditional {
		t.Fatal("expected second edge to be unconditional")
	}
}

func TestCompile_UnknownNodeTypeDefaultsToApproval(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "n1", "type": "start", "position": map[string]int{"x": 0, "y": 0}},
			{"id": "n2", "type": "some_future_type", "position": map[string]int{"x": 1, "y": 0}},
		},
		"edges": []map[string]any{},
	})
	doc, _, err := Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	stages, _ := Compile(doc)
	if stages[0].NodeType != NodeStart {
		t.Fatalf("lowercase %q node type compiled to %s, want START", "start", stages[0].NodeType)
	}
	if stages[1].NodeType != NodeApproval {
		t.Fatalf("unknown node type compiled to %s, want APPROVAL", stages[1].NodeType)
	}
}

func TestMapNodeType_CaseInsensitive(t *testing.T) {
	cases := map[string]NodeType{
		"start":      NodeStart,
		"START":      NodeStart,
		"Approval":   NodeApproval,
		"condition":  NodeCondition,
		"PARALLEL":   NodeParallel,
		"end":        NodeEnd,
		"Notification": NodeNotification,
		"action":     NodeAction,
		"bogus":      NodeApproval,
	}
	for raw, want := range cases {
		if got := mapNodeType(raw); got != want {
			t.Errorf("mapNodeType(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestCompile_OrderIndexMatchesNodePosition(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "a", "type": "start", "position": map[string]int{"x": 0, "y": 0}},
			{"id": "b", "type": "end", "position": map[string]int{"x": 1, "y": 0}},
		},
		"edges": []map[string]any{},
	})
	doc, _, err := Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	stages, _ := Compile(doc)
	for i, s := range stages {
		if s.OrderIndex != i {
			t.Fatalf("stage %s order_index = %d, want %d", s.NodeID, s.OrderIndex, i)
		}
	}
}
