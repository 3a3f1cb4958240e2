package workflow

import "encoding/json"

// compiledEdge is an edge resolved against node ids, not yet resolved
// against persisted stage ids — that resolution happens in the store once
// stages have been inserted and assigned ids.
type compiledEdge struct {
	SourceNodeID string
	TargetNodeID string
	Conditional  bool
	Field        string
	Operator     string
	Value        string
	Label        string
	Priority     int
}

// Compile is the Stage Compiler's (C7) pure transform step: it turns a
// validated graph document into WorkflowStage records (keyed by NodeID,
// not yet a DB id) plus the edge list the store resolves into
// ConditionalRoute rows or next_stage_id links. Grounded on spec §4.7.
func Compile(doc graphDoc) ([]WorkflowStage, []compiledEdge) {
	stages := make([]WorkflowStage, 0, len(doc.Nodes))
	for i, n := range doc.Nodes {
		var data nodeData
		if len(n.Data) > 0 {
			_ = json.Unmarshal(n.Data, &data)
		}

		stage := WorkflowStage{
			NodeID:               n.ID,
			NodeType:             mapNodeType(n.Type),
			OrderIndex:           i,
			RequiredRole:         data.RequiredRole,
			RequiredRoles:        data.RequiredRoles,
			SpecificUsers:        data.SpecificUsers,
			ApprovalType:         ApprovalType(data.ApprovalType),
			RequiredCount:        data.RequiredCount,
			SLAHours:             data.SLAHours,
			NotificationTemplate: data.NotificationTemplate,
			ActionHook:           data.ActionHook,
			PositionX:            n.Position.X,
			PositionY:            n.Position.Y,
		}
		if len(data.ConditionConfig) > 0 {
			var cfg map[string]any
			if err := json.Unmarshal(data.ConditionConfig, &cfg); err == nil {
				stage.ConditionConfig = cfg
			}
		}
		if len(data.EscalationConfig) > 0 {
			var cfg map[string]any
			if err := json.Unmarshal(data.EscalationConfig, &cfg); err == nil {
				stage.EscalationConfig = cfg
			}
		}
		stages = append(stages, stage)
	}

	edges := make([]compiledEdge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		var data edgeData
		if len(e.Data) > 0 {
			_ = json.Unmarshal(e.Data, &data)
		}
		ce := compiledEdge{SourceNodeID: e.Source, TargetNodeID: e.Target}
		if truthy(data.Condition) {
			ce.Conditional = true
			ce.Field = data.ConditionField
			ce.Operator = data.Operator
			ce.Value = toStringValue(data.ConditionValue)
			ce.Label = data.Label
			if data.Priority != nil {
				ce.Priority = *data.Priority
			}
		}
		edges = append(edges, ce)
	}

	return stages, edges
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
