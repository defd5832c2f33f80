package authz

// Actions shared by the folder/document resource types.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionDelete = "delete"
)

// ResourceType is the policy-side definition of an application resource kind.
// Its key is unique within the policy namespace.
type ResourceType struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Actions     []string       `json:"actions"`
	Roles       []Role         `json:"roles"`
	Attributes  []AttributeDef `json:"attributes,omitempty"`
}

// Role names a set of permitted actions on its owning resource type.
type Role struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

// Permits reports whether the role's permission set includes the action.
func (r Role) Permits(action string) bool {
	for _, p := range r.Permissions {
		if p == action {
			return true
		}
	}
	return false
}

// AttributeDef declares a typed attribute relevant to policy decisions.
type AttributeDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// RelationDefinition names a relation from a subject resource type to an
// object resource type. At most one definition exists per triple.
type RelationDefinition struct {
	SubjectType string `json:"subject_type"`
	Relation    string `json:"relation"`
	ObjectType  string `json:"object_type"`
	Name        string `json:"name,omitempty"`
}

// RoleDerivationRule propagates a role across a relation: any user holding
// SourceRole on a subject instance linked to an object instance via Relation
// implicitly holds TargetRole on the object. Exactly one hop, never chained.
type RoleDerivationRule struct {
	SourceType string `json:"source_type"`
	SourceRole string `json:"source_role"`
	Relation   string `json:"relation"`
	ObjectType string `json:"object_type"`
	TargetRole string `json:"target_role"`
}

// ConditionSetType distinguishes user-attribute sets from resource-attribute sets.
type ConditionSetType string

const (
	UserSet     ConditionSetType = "userset"
	ResourceSet ConditionSetType = "resourceset"
)

// ConditionSet is a named, reusable attribute predicate. A resourceset is
// always scoped to exactly one resource type. Expression is an optional
// expr-lang alternative to the predicate tree, evaluated against
// {user, resource} attribute maps.
type ConditionSet struct {
	Key          string           `json:"key"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Type         ConditionSetType `json:"type"`
	ResourceType string           `json:"resource_type,omitempty"`
	Conditions   *Condition       `json:"conditions,omitempty"`
	Expression   string           `json:"expression,omitempty"`
}

// ConditionSetRule links one userset, one resourceset, and one
// (resource type, action) permission.
type ConditionSetRule struct {
	UserSet      string `json:"user_set"`
	ResourceSet  string `json:"resource_set"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
}

// InstanceRef identifies a policy resource instance. A ref with an empty Key
// is synthetic: it describes an about-to-exist resource by type and
// attributes only, and is evaluated against attribute rules alone.
type InstanceRef struct {
	Type       string         `json:"type"`
	Key        string         `json:"key,omitempty"`
	Tenant     string         `json:"tenant"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Synthetic reports whether the ref describes a not-yet-registered resource.
func (r InstanceRef) Synthetic() bool {
	return r.Key == ""
}

// RelationshipTuple records that a subject instance is linked to an object
// instance via a named relation.
type RelationshipTuple struct {
	SubjectType string `json:"subject_type"`
	SubjectKey  string `json:"subject_key"`
	Relation    string `json:"relation"`
	ObjectType  string `json:"object_type"`
	ObjectKey   string `json:"object_key"`
	Tenant      string `json:"tenant"`
}

// RoleAssignment binds a role to a (user, resource instance) pair.
type RoleAssignment struct {
	UserKey      string `json:"user_key"`
	Role         string `json:"role"`
	ResourceType string `json:"resource_type"`
	ResourceKey  string `json:"resource_key"`
	Tenant       string `json:"tenant"`
}
