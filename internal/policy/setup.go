package policy

import (
	"context"
	"fmt"
	"log"

	"docvault-backend/internal/authz"
)

// Well-known keys of the folder/document policy namespace.
const (
	TypeFolder   = "Folder"
	TypeDocument = "Document"

	RelationParent = "parent"

	RoleFolderAdmin   = "admin"
	RoleFolderEditor  = "editor"
	RoleDocumentOwner = "owner"
	RoleDocumentEdit  = "editor"
)

var folderType = authz.ResourceType{
	Key:         TypeFolder,
	Name:        "Folder",
	Description: "A folder containing documents",
	Actions:     []string{authz.ActionCreate, authz.ActionRead, authz.ActionDelete},
	Roles: []authz.Role{
		{
			Name:        RoleFolderAdmin,
			Description: "Admin of the folder",
			Permissions: []string{authz.ActionCreate, authz.ActionRead, authz.ActionDelete},
		},
		{
			Name:        RoleFolderEditor,
			Description: "Editor for the folder",
			Permissions: []string{authz.ActionRead, authz.ActionDelete},
		},
	},
}

var documentType = authz.ResourceType{
	Key:         TypeDocument,
	Name:        "Document",
	Description: "A document in the system",
	Actions:     []string{authz.ActionCreate, authz.ActionRead, authz.ActionDelete},
	Roles: []authz.Role{
		{
			Name:        RoleDocumentOwner,
			Description: "Owner of the document",
			Permissions: []string{authz.ActionCreate, authz.ActionRead, authz.ActionDelete},
		},
		{
			Name:        RoleDocumentEdit,
			Description: "Editor for the document",
			// Delete without create mirrors the configured policy; see the
			// pinning test before changing it.
			Permissions: []string{authz.ActionRead, authz.ActionDelete},
		},
	},
	Attributes: []authz.AttributeDef{
		{Name: "department", Type: "string", Description: "Department that owns the document"},
	},
}

var parentRelation = authz.RelationDefinition{
	SubjectType: TypeFolder,
	Relation:    RelationParent,
	ObjectType:  TypeDocument,
	Name:        "Parent",
}

var roleDerivations = []authz.RoleDerivationRule{
	{SourceType: TypeFolder, SourceRole: RoleFolderAdmin, Relation: RelationParent, ObjectType: TypeDocument, TargetRole: RoleDocumentOwner},
	{SourceType: TypeFolder, SourceRole: RoleFolderEditor, Relation: RelationParent, ObjectType: TypeDocument, TargetRole: RoleDocumentEdit},
}

var conditionSets = []authz.ConditionSet{
	{
		Key:         "qa_department_rules",
		Name:        "Q/A department rules",
		Description: "Check if user is in quality assurance",
		Type:        authz.UserSet,
		Conditions: &authz.Condition{AllOf: []authz.Condition{
			{AllOf: []authz.Condition{
				{Attr: "user.department", Op: authz.OpEquals, Value: "QA"},
				{Attr: "user.classification", Op: authz.OpEquals, Value: "Admin"},
			}},
		}},
	},
	{
		Key:         "engineering_department_rules",
		Name:        "Engineering department rules",
		Description: "Check if user is in the engineering department",
		Type:        authz.UserSet,
		Conditions: &authz.Condition{AllOf: []authz.Condition{
			{AllOf: []authz.Condition{
				{Attr: "user.department", Op: authz.OpEquals, Value: "Engineering"},
				{Attr: "user.classification", Op: authz.OpEquals, Value: "Admin"},
			}},
		}},
	},
	{
		Key:          "departmental_hierarchy",
		Name:         "Departmental hierarchy",
		Type:         authz.ResourceSet,
		ResourceType: TypeDocument,
		Conditions: &authz.Condition{AllOf: []authz.Condition{
			{AllOf: []authz.Condition{
				{Attr: "resource.department", Op: authz.OpEquals, Ref: "user.department"},
			}},
		}},
	},
}

var conditionSetRules = []authz.ConditionSetRule{
	{UserSet: "engineering_department_rules", ResourceSet: "departmental_hierarchy", ResourceType: TypeDocument, Action: authz.ActionCreate},
	{UserSet: "engineering_department_rules", ResourceSet: "departmental_hierarchy", ResourceType: TypeDocument, Action: authz.ActionRead},
	{UserSet: "qa_department_rules", ResourceSet: "departmental_hierarchy", ResourceType: TypeDocument, Action: authz.ActionCreate},
	{UserSet: "qa_department_rules", ResourceSet: "departmental_hierarchy", ResourceType: TypeDocument, Action: authz.ActionRead},
}

// Setup writes the folder/document policy namespace. Every step is an
// idempotent upsert, so the procedure can run on every boot and under
// concurrent deployments. The first failure aborts the remaining steps;
// earlier steps keep their effects.
func Setup(ctx context.Context, svc *Service) error {
	for _, def := range []authz.ResourceType{folderType, documentType} {
		if err := svc.UpsertResourceType(ctx, def); err != nil {
			return fmt.Errorf("policy setup: %w", err)
		}
		log.Printf("Policy resource type %q ready", def.Key)
	}

	if err := svc.UpsertRelationDefinition(ctx, parentRelation); err != nil {
		return fmt.Errorf("policy setup: %w", err)
	}
	log.Printf("Policy relation %q (%s -> %s) ready", parentRelation.Relation, parentRelation.SubjectType, parentRelation.ObjectType)

	for _, rule := range roleDerivations {
		if err := svc.UpsertRoleDerivationRule(ctx, rule); err != nil {
			return fmt.Errorf("policy setup: %w", err)
		}
		log.Printf("Policy derivation %s:%s -> %s:%s ready", rule.SourceType, rule.SourceRole, rule.ObjectType, rule.TargetRole)
	}

	for _, cs := range conditionSets {
		if err := svc.UpsertConditionSet(ctx, cs); err != nil {
			return fmt.Errorf("policy setup: %w", err)
		}
		log.Printf("Policy condition set %q ready", cs.Key)
	}

	for _, rule := range conditionSetRules {
		if err := svc.UpsertConditionSetRule(ctx, rule); err != nil {
			return fmt.Errorf("policy setup: %w", err)
		}
	}
	log.Printf("Policy condition set rules ready (%d)", len(conditionSetRules))

	return nil
}
