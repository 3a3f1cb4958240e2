package abac

import "sort"

// Matcher narrows a pre-queried policy set (already filtered by the store
// to active policies matching action/resource_type or their wildcards) down
// to the subject-scoped candidate set, ordered for arbitration. Grounded on
// spec §4.3 / original_source's ABACService._get_applicable_policies.
type Matcher struct{}

func NewMatcher() *Matcher { return &Matcher{} }

// Candidates applies the role/department/division scope filters to
// policies and returns them ordered by priority descending, ties broken by
// ascending id.
func (m *Matcher) Candidates(policies []Policy, subject Subject) []Policy {
	out := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if !p.IsActive {
			continue
		}
		if len(p.RoleRequirements) > 0 && !rolesIntersect(p.RoleRequirements, subject.EffectiveRoles()) {
			continue
		}
		if len(p.DepartmentIDs) > 0 && !profileInSet(subject.Profile, p.DepartmentIDs, func(sp *SubjectProfile) *int64 { return sp.DepartmentID }) {
			continue
		}
		if len(p.DivisionIDs) > 0 && !profileInSet(subject.Profile, p.DivisionIDs, func(sp *SubjectProfile) *int64 { return sp.DivisionID }) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MatchesActionOrWildcard reports whether a policy's action/resource_type
// field matches the requested value exactly or via the "*" wildcard. The
// store does not call it: its candidate query expresses the same OR in SQL
// on both backends.
func MatchesActionOrWildcard(field, requested string) bool {
	return field == requested || field == "*"
}

func rolesIntersect(required, have []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, r := range have {
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// profileInSet reports whether the subject has a profile and the value
// selected by get is present in ids. A subject with no profile fails every
// scoped policy, per spec §4.3 step 4 (documented Open Question in §9).
func profileInSet(profile *SubjectProfile, ids []int64, get func(*SubjectProfile) *int64) bool {
	if profile == nil {
		return false
	}
	v := get(profile)
	if v == nil {
		return false
	}
	for _, id := range ids {
		if id == *v {
			return true
		}
	}
	return false
}
