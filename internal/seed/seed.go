// Package seed loads a human-editable YAML fixture describing departments,
// divisions, subjects, policies, and policy templates, and applies it
// idempotently to the store. Grounded on internal/policy.LoadFile/Load in
// the teacher repo: a single YAML document, environment-variable expansion,
// and upfront structural validation before anything touches the database.
//
// The YAML file is a convenience for bootstrapping demo/test data; per
// SPEC_FULL §1a the database remains the only source of truth read at
// evaluation time — nothing in internal/abac or internal/workflow reads
// this format.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hybridauth/internal/abac"
	"hybridauth/internal/store"
)

// Document is the top-level shape of a seed YAML file.
type Document struct {
	Version               string                `yaml:"version"`
	Departments           []Department          `yaml:"departments,omitempty"`
	Divisions             []Division            `yaml:"divisions,omitempty"`
	Subjects              []Subject             `yaml:"subjects,omitempty"`
	Policies              []Policy              `yaml:"policies,omitempty"`
	Templates             []PolicyTemplate      `yaml:"policy_templates,omitempty"`
	PoliciesFromTemplates []PolicyFromTemplate  `yaml:"policies_from_templates,omitempty"`
}

// PolicyFromTemplate instantiates a PolicyTemplate (declared in this file's
// policy_templates: section, or already present in the store) via
// abac.ExpandTemplate, per SPEC_FULL §4.10. This is the seeding-convenience
// caller the operation is grounded on: expand, then hand the result to
// CreatePolicy unchanged.
type PolicyFromTemplate struct {
	Template string            `yaml:"template"`
	Params   map[string]string `yaml:"params"`
}

type Department struct {
	Name string `yaml:"name"`
}

type Division struct {
	Name string `yaml:"name"`
}

type Subject struct {
	Email       string         `yaml:"email"`
	Username    string         `yaml:"username"`
	Role        string         `yaml:"role"`
	Roles       []string       `yaml:"roles,omitempty"`
	IsActive    *bool          `yaml:"is_active,omitempty"`
	IsSuperuser bool           `yaml:"is_superuser,omitempty"`
	Profile     *SubjectProfile `yaml:"profile,omitempty"`
}

// IsEnabled mirrors the teacher's Policy.IsEnabled nil-means-true convention.
func (s Subject) IsEnabled() bool {
	if s.IsActive == nil {
		return true
	}
	return *s.IsActive
}

type SubjectProfile struct {
	Department               string         `yaml:"department,omitempty"`
	Division                 string         `yaml:"division,omitempty"`
	TeamID                   *int64         `yaml:"team_id,omitempty"`
	JobTitle                 string         `yaml:"job_title,omitempty"`
	JobLevel                 *int           `yaml:"job_level,omitempty"`
	ApprovalLimitAmount       *int64         `yaml:"approval_limit_amount,omitempty"`
	CanApproveOwnDepartment  bool           `yaml:"can_approve_own_department,omitempty"`
	CanApproveAllDepartments bool           `yaml:"can_approve_all_departments,omitempty"`
	OfficeLocation           string         `yaml:"office_location,omitempty"`
	CountryCode              string         `yaml:"country_code,omitempty"`
	Timezone                 string         `yaml:"timezone,omitempty"`
	CustomAttributes         map[string]any `yaml:"custom_attributes,omitempty"`
}

type Policy struct {
	Name             string              `yaml:"name"`
	Description      string              `yaml:"description,omitempty"`
	Effect           string              `yaml:"effect"`
	Priority         int                 `yaml:"priority,omitempty"`
	Action           string              `yaml:"action"`
	ResourceType     string              `yaml:"resource_type"`
	Conditions       *abac.ConditionGroup `yaml:"conditions,omitempty"`
	Departments      []string            `yaml:"departments,omitempty"`
	Divisions        []string            `yaml:"divisions,omitempty"`
	RequiredRoles    []string            `yaml:"required_roles,omitempty"`
	Enabled          *bool               `yaml:"enabled,omitempty"`
}

func (p Policy) IsEnabled() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

type PolicyTemplate struct {
	Name               string         `yaml:"name"`
	Description        string         `yaml:"description,omitempty"`
	Category           string         `yaml:"category,omitempty"`
	TemplateConfig     map[string]any `yaml:"template_config"`
	RequiredParameters []string       `yaml:"required_parameters,omitempty"`
}

// LoadFile reads and parses a seed document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Load(data)
}

// Load parses a seed document from YAML bytes, expanding environment
// variables first exactly as the teacher's policy loader does.
func Load(data []byte) (*Document, error) {
	expanded := os.ExpandEnv(string(data))

	var doc Document
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse seed YAML: %w", err)
	}
	if doc.Version == "" {
		doc.Version = "1"
	}
	if err := validate(&doc); err != nil {
		return nil, fmt.Errorf("validate seed document: %w", err)
	}
	return &doc, nil
}

func validate(doc *Document) error {
	seen := make(map[string]bool, len(doc.Policies))
	for i, p := range doc.Policies {
		if p.Name == "" {
			return fmt.Errorf("policy %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("policy %d: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.Effect != "ALLOW" && p.Effect != "DENY" {
			return fmt.Errorf("policy %q: effect must be ALLOW or DENY, got %q", p.Name, p.Effect)
		}
		if p.Action == "" || p.ResourceType == "" {
			return fmt.Errorf("policy %q: action and resource_type are required", p.Name)
		}
	}
	for i, s := range doc.Subjects {
		if s.Email == "" {
			return fmt.Errorf("subject %d: email is required", i)
		}
	}
	for i, pft := range doc.PoliciesFromTemplates {
		if pft.Template == "" {
			return fmt.Errorf("policies_from_templates %d: template is required", i)
		}
	}
	return nil
}

// Apply persists a seed Document idempotently: departments/divisions are
// looked up-or-created by name, subjects by email, policies by name (an
// existing policy of the same name is left untouched — seeding never
// overwrites a hand-edited policy), and policy templates by name.
func Apply(ctx context.Context, db *store.DB, doc *Document) (Result, error) {
	a := newApplier(db)
	var res Result

	for _, d := range doc.Departments {
		id, created, err := a.upsertDepartment(ctx, d.Name)
		if err != nil {
			return res, fmt.Errorf("department %q: %w", d.Name, err)
		}
		if created {
			res.DepartmentsCreated++
		}
		a.departmentIDs[d.Name] = id
	}
	for _, d := range doc.Divisions {
		id, created, err := a.upsertDivision(ctx, d.Name)
		if err != nil {
			return res, fmt.Errorf("division %q: %w", d.Name, err)
		}
		if created {
			res.DivisionsCreated++
		}
		a.divisionIDs[d.Name] = id
	}
	for _, s := range doc.Subjects {
		created, err := a.upsertSubject(ctx, s)
		if err != nil {
			return res, fmt.Errorf("subject %q: %w", s.Email, err)
		}
		if created {
			res.SubjectsCreated++
		}
	}
	for _, p := range doc.Policies {
		if !p.IsEnabled() {
			continue
		}
		created, err := a.upsertPolicy(ctx, p)
		if err != nil {
			return res, fmt.Errorf("policy %q: %w", p.Name, err)
		}
		if created {
			res.PoliciesCreated++
		}
	}
	for _, t := range doc.Templates {
		created, err := a.upsertTemplate(ctx, t)
		if err != nil {
			return res, fmt.Errorf("policy template %q: %w", t.Name, err)
		}
		if created {
			res.TemplatesCreated++
		}
	}
	for _, pft := range doc.PoliciesFromTemplates {
		created, err := a.applyPolicyFromTemplate(ctx, pft)
		if err != nil {
			return res, fmt.Errorf("policies_from_templates %q: %w", pft.Template, err)
		}
		if created {
			res.PoliciesCreated++
		}
	}
	return res, nil
}

// Result tallies what Apply actually inserted, so a CLI caller can report
// what was new versus already present.
type Result struct {
	DepartmentsCreated int
	DivisionsCreated   int
	SubjectsCreated    int
	PoliciesCreated    int
	TemplatesCreated   int
}

func timeNow() time.Time { return time.Now().UTC() }
