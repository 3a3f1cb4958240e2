package workflow

import (
	"encoding/json"
	"testing"
)

func TestValidate_RequiresStartNode(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{{"id": "n1", "type": "APPROVAL", "position": map[string]int{"x": 0, "y": 0}}},
		"edges": []map[string]any{},
	})
	_, diags, err := Validate(raw)
	if err == nil {
		t.Fatal("expected validation error with no start node")
	}
	found := false
	for _, d := range diags {
		if d.Code == "NO_START_NODE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NO_START_NODE diagnostic, got %v", diags)
	}
}

func TestValidate_DuplicateNodeIDs(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "n1", "type": "start", "position": map[string]int{"x": 0, "y": 0}},
			{"id": "n1", "type": "end", "position": map[string]int{"x": 1, "y": 0}},
		},
		"edges": []map[string]any{},
	})
	_, diags, err := Validate(raw)
	if err == nil {
		t.Fatal("expected validation error on duplicate node id")
	}
	found := false
	for _, d := range diags {
		if d.Code == "DUPLICATE_NODE_ID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected DUPLICATE_NODE_ID diagnostic, got %v", diags)
	}
}

func TestValidate_DanglingEdge(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{{"id": "n1", "type": "start", "position": map[string]int{"x": 0, "y": 0}}},
		"edges": []map[string]any{{"id": "e1", "source": "n1", "target": "ghost"}},
	})
	_, diags, err := Validate(raw)
	if err == nil {
		t.Fatal("expected validation error on dangling edge target")
	}
	found := false
	for _, d := range diags {
		if d.Code == "DANGLING_EDGE_TARGET" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected DANGLING_EDGE_TARGET diagnostic, got %v", diags)
	}
}

func TestValidate_EmptyNodesFails(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"nodes": []map[string]any{}, "edges": []map[string]any{}})
	_, _, err := Validate(raw)
	if err == nil {
		t.Fatal("expected validation error for empty node list")
	}
}

func TestNormalizeForStorage_StripsEphemeralNodeState(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "n1", "type": "start", "position": map[string]int{"x": 0, "y": 0}, "selected": true, "dragging": false, "width": 150},
			{"id": "n2", "type": "end", "position": map[string]int{"x": 1, "y": 0}},
		},
		"edges": []map[string]any{{"id": "e1", "source": "n1", "target": "n2"}},
	})

	normalized := NormalizeForStorage(raw)

	var doc map[string]any
	if err := json.Unmarshal(normalized, &doc); err != nil {
		t.Fatalf("normalized output is not valid JSON: %v", err)
	}
	nodes := doc["nodes"].([]any)
	n1 := nodes[0].(map[string]any)
	for _, key := range []string{"selected", "dragging", "width"} {
		if _, ok := n1[key]; ok {
			t.Fatalf("expected %q to be stripped from node, got %v", key, n1)
		}
	}
	if n1["id"] != "n1" {
		t.Fatalf("expected node identity preserved, got %v", n1)
	}

	if _, _, err := Validate(normalized); err != nil {
		t.Fatalf("normalized graph should still validate: %v", err)
	}
}

func TestNormalizeForStorage_InvalidJSONPassesThrough(t *testing.T) {
	raw := json.RawMessage(`not json`)
	if got := NormalizeForStorage(raw); string(got) != string(raw) {
		t.Fatalf("expected invalid JSON to pass through unchanged, got %q", got)
	}
}

func TestValidate_WellFormedGraphPasses(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "n1", "type": "start", "position": map[string]int{"x": 0, "y": 0}},
			{"id": "n2", "type": "end", "position": map[string]int{"x": 1, "y": 0}},
		},
		"edges": []map[string]any{{"id": "e1", "source": "n1", "target": "n2"}},
	})
	_, diags, err := Validate(raw)
	if err != nil {
		t.Fatalf("expected valid graph, got error: %v (%v)", err, diags)
	}
}
