// Package abac implements the ABAC Policy Decision Engine: attribute
// resolution, condition evaluation, policy matching, decision arbitration,
// and audit persistence. Grounded on internal/policy/{types,engine,explain,loader}.go
// in the teacher repo, with the effect/priority/condition semantics replaced
// by the ones original_source/app/services/abac_service.py implements.
package abac

import "time"

// PolicyEffect is the outcome a matched Policy produces.
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "ALLOW"
	EffectDeny  PolicyEffect = "DENY"
)

// Operator is the typed comparison a Condition applies.
type Operator string

const (
	OpEQ         Operator = "EQ"
	OpNE         Operator = "NE"
	OpGT         Operator = "GT"
	OpGTE        Operator = "GTE"
	OpLT         Operator = "LT"
	OpLTE        Operator = "LTE"
	OpIN         Operator = "IN"
	OpNotIN      Operator = "NOT_IN"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS_WITH"
	OpEndsWith   Operator = "ENDS_WITH"
	OpBetween    Operator = "BETWEEN"
	OpIsNull     Operator = "IS_NULL"
	OpIsNotNull  Operator = "IS_NOT_NULL"
)

// Condition is a single typed predicate: attribute_path op operand. Operand
// may be a literal, a list, or a "{{path}}" reference resolved against the
// same bags at evaluation time.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// ConditionGroup wraps a Condition list under exactly one of All/Any/None.
// Exactly one field must be non-nil; anything else is a malformed group
// (treated as false by the evaluator, not an error).
type ConditionGroup struct {
	All  []Condition `json:"all,omitempty"`
	Any  []Condition `json:"any,omitempty"`
	None []Condition `json:"none,omitempty"`
}

// Subject is an authenticated principal as seen by the Decision Engine.
type Subject struct {
	ID          int64
	Email       string
	Username    string
	Role        string
	Roles       []string
	IsActive    bool
	IsSuperuser bool
	Profile     *SubjectProfile
}

// EffectiveRoles returns Roles when it is non-empty, and otherwise Role as a
// one-element list (nil when both are empty). The two are not merged.
func (s Subject) EffectiveRoles() []string {
	if len(s.Roles) > 0 {
		return s.Roles
	}
	if s.Role != "" {
		return []string{s.Role}
	}
	return nil
}

// SubjectProfile carries the organizational attributes used by scope
// filters and custom-attribute conditions.
type SubjectProfile struct {
	SubjectID                int64
	DepartmentID             *int64
	DivisionID               *int64
	TeamID                   *int64
	JobTitle                 string
	JobLevel                 *int
	ApprovalLimitAmount      *int64
	CanApproveOwnDepartment  bool
	CanApproveAllDepartments bool
	OfficeLocation           string
	CountryCode              string
	Timezone                 string
	CustomAttributes         map[string]any
}

// SubjectProfilePatch carries a partial update; nil fields are left alone.
type SubjectProfilePatch struct {
	DepartmentID             **int64
	DivisionID               **int64
	TeamID                   **int64
	JobTitle                 *string
	JobLevel                 **int
	ApprovalLimitAmount      **int64
	CanApproveOwnDepartment  *bool
	CanApproveAllDepartments *bool
	OfficeLocation           *string
	CountryCode              *string
	Timezone                 *string
	CustomAttributes         map[string]any
}

// Policy is the unit of arbitration. See spec invariants P1-P4: unique name,
// non-null effect/action/resource_type, role-scope intersection, wildcards
// restricted to action/resource_type.
type Policy struct {
	ID               int64
	Name             string
	Description      string
	Effect           PolicyEffect
	Priority         int
	Action           string
	ResourceType     string
	Conditions       *ConditionGroup
	DepartmentIDs    []int64
	DivisionIDs      []int64
	RoleRequirements []string
	IsActive         bool
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PolicyFilter narrows list_policies.
type PolicyFilter struct {
	ResourceType *string
	Action       *string
	Active       *bool
}

// PolicyPatch carries a partial update to update_policy. Nil fields are left
// untouched; non-nil pointer-to-pointer fields allow clearing optional data.
type PolicyPatch struct {
	Description      *string
	Effect           *PolicyEffect
	Priority         *int
	Action           *string
	ResourceType     *string
	Conditions       **ConditionGroup
	DepartmentIDs    *[]int64
	DivisionIDs      *[]int64
	RoleRequirements *[]string
	IsActive         *bool
}

// AttributeType tags how a ResourceAttribute.Value string should be parsed.
type AttributeType string

const (
	AttrString  AttributeType = "string"
	AttrNumber  AttributeType = "number"
	AttrBoolean AttributeType = "boolean"
	AttrJSON    AttributeType = "json"
)

// ResourceAttribute is a dynamic attribute keyed by (resource_type,
// resource_id, attribute_name).
type ResourceAttribute struct {
	ID            int64
	ResourceType  string
	ResourceID    string
	AttributeName string
	AttributeValue string
	AttributeType AttributeType
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccessRequest is the (subject, action, resource, environment) tuple
// check_access arbitrates over.
type AccessRequest struct {
	Subject        Subject
	Action         string
	ResourceType   string
	ResourceID     string
	ResourceObject map[string]any
	Context        *RequestContext
}

// RequestContext carries the request-scoped environment fields.
type RequestContext struct {
	IPAddress string
	UserAgent string
	Endpoint  string
}

// Decision is the outcome of check_access.
type Decision struct {
	Allowed        bool
	Reason         string
	MatchedPolicy  *Policy
	EvaluatedIDs   []int64
	ElapsedMS      int64
}

// HybridRequest is the input to evaluate_hybrid: role checks combined with
// an optional ABAC decision. Permission checks are intentionally absent —
// see the third Open Question in spec §9.
type HybridRequest struct {
	Subject          Subject
	RequiredRoles    []string
	ABACAction       string
	ABACResourceType string
	ResourceID       string
	Context          *RequestContext
	RequireAll       bool
}

// AuditRecord is the append-only log of a single check_access call.
type AuditRecord struct {
	ID                int64
	EventID           string
	SubjectID         int64
	Action            string
	ResourceType      string
	ResourceID        string
	Decision          PolicyEffect
	MatchedPolicyID   *int64
	SubjectBag        map[string]any
	ResourceBag       map[string]any
	EnvironmentBag    map[string]any
	EvaluatedPolicies []int64
	EvaluationTimeMS  int64
	Reason            string
	IPAddress         string
	UserAgent         string
	Endpoint          string
	CreatedAt         time.Time
}

// AuditFilter narrows list_audit. Limit is clamped to 1000 by the store.
type AuditFilter struct {
	SubjectID    *int64
	ResourceType *string
	Action       *string
	Decision     *PolicyEffect
	Limit        int
}

// Department and Division are the supplemental scope entities referenced by
// SubjectProfile and Policy scope filters. Grounded on
// original_source/app/models/abac.py's Department/Division foreign keys.
type Department struct {
	ID   int64
	Name string
}

type Division struct {
	ID   int64
	Name string
}

// PolicyTemplate is a seeding convenience restored from
// original_source/app/models/abac.py; it never participates in check_access.
type PolicyTemplate struct {
	ID                 int64
	Name               string
	Description        string
	Category           string
	TemplateConfig     map[string]any
	RequiredParameters []string
	IsActive           bool
	CreatedAt          time.Time
}
