// Package workflow implements the Visual Workflow Compiler & Validator:
// graph structural validation, compilation to stage/route records, version
// snapshotting, and role-scoped visibility. Grounded on the teacher's
// internal/policy package for the config/validation shape and on
// other_examples/ node-graph models (n8n's Workflow/Node/Connection
// structs) for the authoring document shape, since original_source/
// carried no workflow implementation to translate directly.
package workflow

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a WorkflowDefinition.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// NodeType is the compiled type of a WorkflowStage.
type NodeType string

const (
	NodeStart        NodeType = "START"
	NodeApproval      NodeType = "APPROVAL"
	NodeCondition     NodeType = "CONDITION"
	NodeParallel      NodeType = "PARALLEL"
	NodeEnd           NodeType = "END"
	NodeNotification  NodeType = "NOTIFICATION"
	NodeAction        NodeType = "ACTION"
)

// ApprovalType controls how a PARALLEL approval stage resolves.
type ApprovalType string

const (
	ApprovalSequential      ApprovalType = "SEQUENTIAL"
	ApprovalParallelAll     ApprovalType = "PARALLEL_ALL"
	ApprovalParallelAny     ApprovalType = "PARALLEL_ANY"
	ApprovalParallelMajority ApprovalType = "PARALLEL_MAJORITY"
)

// WorkflowDefinition is the authored, versioned workflow document.
type WorkflowDefinition struct {
	ID           int64
	Name         string
	ModelName    string
	Graph        json.RawMessage
	Version      int
	Status       Status
	CreatedBy    int64
	DepartmentID *int64
	DivisionID   *int64
	ViewRoles    []string
	EditRoles    []string
	UseRoles     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PublishedAt  *time.Time
}

// WorkflowStage is a compiled, derived record — never authored or mutated
// directly; every save destroys and rebuilds the full set (spec §9).
type WorkflowStage struct {
	ID                   int64
	WorkflowID           int64
	NodeID               string
	NodeType             NodeType
	OrderIndex           int
	RequiredRole         string
	RequiredRoles        []string
	SpecificUsers        []int64
	ApprovalType         ApprovalType
	RequiredCount        *int
	ConditionConfig      map[string]any
	SLAHours             *int
	EscalationConfig      map[string]any
	NotificationTemplate string
	ActionHook           string
	PositionX            float64
	PositionY            float64
	NextStageID          *int64
}

// ConditionalRoute is an explicit conditional edge between two compiled
// stages.
type ConditionalRoute struct {
	ID          int64
	FromStageID int64
	ToStageID   int64
	Label       string
	Field       string
	Operator    string
	Value       string
	Priority    int
}

// WorkflowVersion is an immutable snapshot taken before a mutating save.
type WorkflowVersion struct {
	ID                int64
	WorkflowID        int64
	VersionNumber     int
	Graph             json.RawMessage
	ChangeDescription string
	CreatedBy         int64
	CreatedAt         time.Time
}

// WorkflowFilter narrows list_workflows.
type WorkflowFilter struct {
	Status       *Status
	DepartmentID *int64
}

// Subject is the caller the Visibility Gate (C9) evaluates view/edit/use/
// publish predicates against. Deliberately independent of abac.Subject —
// the gate only ever needs identity, roles, admin status, and org scope.
type Subject struct {
	ID           int64
	Roles        []string
	IsAdmin      bool
	DepartmentID *int64
	DivisionID   *int64
}

func (s Subject) hasAnyRole(roles []string) bool {
	if len(roles) == 0 {
		return false
	}
	have := make(map[string]struct{}, len(s.Roles))
	for _, r := range s.Roles {
		have[r] = struct{}{}
	}
	for _, r := range roles {
		if _, ok := have[r]; ok {
			return true
		}
	}
	return false
}

// SaveGraphRequest is the input to save_workflow_graph: id is nil for a new
// workflow.
type SaveGraphRequest struct {
	ID                *int64
	Name              string
	ModelName         string
	Graph             json.RawMessage
	ChangeDescription string
	DepartmentID      *int64
	DivisionID        *int64
	ViewRoles         []string
	EditRoles         []string
	UseRoles          []string
}

// Diagnostic is a single structural validation finding from the Graph
// Validator or the publish-completeness check.
type Diagnostic struct {
	Code    string
	Message string
	NodeID  string
}

// graphDoc mirrors the authoring JSON shape from spec §6: nodes, edges,
// optional viewport. Field order and names match the wire format exactly.
type graphDoc struct {
	Nodes    []graphNode `json:"nodes"`
	Edges    []graphEdge `json:"edges"`
	Viewport json.RawMessage `json:"viewport,omitempty"`
}

type graphNode struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position graphPosition   `json:"position"`
	Data     json.RawMessage `json:"data"`
}

type graphPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type graphEdge struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// nodeData is the subset of a node's opaque `data` object the Stage
// Compiler reads. Unknown fields are ignored, matching the graph's opaque
// document contract in spec §3/§6.
type nodeData struct {
	RequiredRole         string          `json:"required_role"`
	RequiredRoles        []string        `json:"required_roles"`
	SpecificUsers        []int64         `json:"specific_users"`
	ApprovalType         string          `json:"approval_type"`
	RequiredCount        *int            `json:"required_count"`
	ConditionConfig      json.RawMessage `json:"condition_config"`
	SLAHours             *int            `json:"sla_hours"`
	EscalationConfig      json.RawMessage `json:"escalation_config"`
	NotificationTemplate string          `json:"notification_template"`
	ActionHook           string          `json:"action_hook"`
}

// edgeData is the subset of an edge's opaque `data` object the Stage
// Compiler reads for conditional routing.
type edgeData struct {
	Condition      any     `json:"condition"`
	ConditionField string  `json:"condition_field"`
	Operator       string  `json:"operator"`
	ConditionValue any     `json:"condition_value"`
	Label          string  `json:"label"`
	Priority       *int    `json:"priority"`
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func mapNodeType(raw string) NodeType {
	switch t := NodeType(strings.ToUpper(raw)); t {
	case NodeStart, NodeApproval, NodeCondition, NodeParallel, NodeEnd, NodeNotification, NodeAction:
		return t
	default:
		return NodeApproval
	}
}
