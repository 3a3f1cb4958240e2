package abac

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
)

// resourceScalarFields are shallow-copied from a resource object when
// present, per spec §4.1.
var resourceScalarFields = []string{
	"status", "amount", "total_amount", "created_by", "department_id",
	"division_id", "created_at", "priority", "category", "assigned_to",
}

// Resolver assembles the subject/resource/environment attribute bags the
// Condition Evaluator reads. It never fails — unknown or missing data
// surfaces as an absent key, never an error, per spec §4.1's contract.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// Resolve builds the three bags for one evaluation. resourceObjectJSON is
// the caller-supplied resource object as raw JSON (nil/empty if none);
// resourceAttrs are the persisted dynamic attributes for (resourceType,
// resourceID) to overlay on top of it.
func (r *Resolver) Resolve(
	subject Subject,
	resourceType, resourceID string,
	resourceObjectJSON []byte,
	resourceAttrs []ResourceAttribute,
	reqCtx *RequestContext,
) (subjectBag, resourceBag, envBag map[string]any) {
	return r.subjectBag(subject), r.resourceBag(resourceType, resourceID, resourceObjectJSON, resourceAttrs), r.envBag(reqCtx)
}

func (r *Resolver) subjectBag(s Subject) map[string]any {
	bag := map[string]any{
		"id":           s.ID,
		"is_active":    s.IsActive,
		"is_superuser": s.IsSuperuser,
	}
	if s.Email != "" {
		bag["email"] = s.Email
	}
	if s.Username != "" {
		bag["username"] = s.Username
	}
	if s.Role != "" {
		bag["role"] = s.Role
	}
	if roles := s.EffectiveRoles(); len(roles) > 0 {
		bag["roles"] = roles
	}

	if p := s.Profile; p != nil {
		if p.DepartmentID != nil {
			bag["department_id"] = *p.DepartmentID
		}
		if p.DivisionID != nil {
			bag["division_id"] = *p.DivisionID
		}
		if p.TeamID != nil {
			bag["team_id"] = *p.TeamID
		}
		if p.JobTitle != "" {
			bag["job_title"] = p.JobTitle
		}
		if p.JobLevel != nil {
			bag["job_level"] = *p.JobLevel
		}
		if p.ApprovalLimitAmount != nil {
			bag["approval_limit_amount"] = *p.ApprovalLimitAmount
		}
		bag["can_approve_own_department"] = p.CanApproveOwnDepartment
		bag["can_approve_all_departments"] = p.CanApproveAllDepartments
		if p.OfficeLocation != "" {
			bag["office_location"] = p.OfficeLocation
		}
		if p.CountryCode != "" {
			bag["country_code"] = p.CountryCode
		}

		// Custom attributes are merged last and win on key collision —
		// documented in spec §4.1.
		for k, v := range normalizeCustomAttributes(p.CustomAttributes) {
			bag[k] = v
		}
	}
	return bag
}

// normalizeCustomAttributes copies a subject's free-form attribute map
// through mapstructure. Because the target values are untyped, each value
// keeps the type it was decoded with; comparing numeric-looking strings
// with numbers is left to the Condition Evaluator's coercions.
func normalizeCustomAttributes(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return raw
	}
	if err := dec.Decode(raw); err != nil {
		return raw
	}
	return out
}

func (r *Resolver) resourceBag(resourceType, resourceID string, objJSON []byte, attrs []ResourceAttribute) map[string]any {
	bag := map[string]any{
		"type": resourceType,
		"id":   resourceID,
	}

	if len(objJSON) > 0 && gjson.ValidBytes(objJSON) {
		for _, field := range resourceScalarFields {
			res := gjson.GetBytes(objJSON, field)
			if res.Exists() {
				bag[field] = res.Value()
			}
		}
	}

	for _, a := range attrs {
		bag[a.AttributeName] = parseAttributeValue(a.AttributeType, a.AttributeValue)
	}
	return bag
}

func parseAttributeValue(t AttributeType, raw string) any {
	switch t {
	case AttrNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case AttrBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes":
			return true
		default:
			return false
		}
	case AttrJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
		return raw
	default:
		return raw
	}
}

func (r *Resolver) envBag(reqCtx *RequestContext) map[string]any {
	now := time.Now().UTC()
	bag := map[string]any{
		"current_time":        now.Format(time.RFC3339),
		"current_date":        now.Format("2006-01-02"),
		"current_hour":        now.Hour(),
		"current_day_of_week": now.Weekday().String(),
		"current_month":       int(now.Month()),
		"current_year":        now.Year(),
	}
	if reqCtx != nil {
		if reqCtx.IPAddress != "" {
			bag["ip_address"] = reqCtx.IPAddress
		}
		if reqCtx.UserAgent != "" {
			bag["user_agent"] = reqCtx.UserAgent
		}
		if reqCtx.Endpoint != "" {
			bag["endpoint"] = reqCtx.Endpoint
		}
	}
	return bag
}
