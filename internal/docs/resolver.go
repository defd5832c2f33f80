package docs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/policy"
	"docvault-backend/internal/store"
)

// Kind tags the resource union resolved from the keyed store.
type Kind string

const (
	KindFolder   Kind = "folder"
	KindDocument Kind = "document"
)

// Key layout of the folder_documents table. Folders are
// (FOLDER#id, FOLDER); standalone documents are (DOCUMENT#id, METADATA);
// nested documents are (FOLDER#folderID, DOCUMENT#id) with the sort key
// covered by a secondary index.
const (
	folderKeyPrefix   = "FOLDER#"
	documentKeyPrefix = "DOCUMENT#"
	skFolder          = "FOLDER"
	skMetadata        = "METADATA"
)

// Resource is the resolved application resource the engine evaluates
// against, typed once at the boundary.
type Resource struct {
	Kind       Kind      `json:"kind"`
	ID         string    `json:"id"`
	FolderID   string    `json:"folder_id,omitempty"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`

	PK string `json:"-"`
	SK string `json:"-"`
}

// InstanceRef derives the policy instance reference from the stored keys.
// The child key prefix wins over the parent key prefix when both are
// present, so a nested document row maps to the document, not its folder.
func (r *Resource) InstanceRef(tenant string) (authz.InstanceRef, error) {
	switch {
	case strings.HasPrefix(r.SK, documentKeyPrefix):
		return authz.InstanceRef{Type: policy.TypeDocument, Key: strings.TrimPrefix(r.SK, documentKeyPrefix), Tenant: tenant}, nil
	case strings.HasPrefix(r.PK, documentKeyPrefix):
		return authz.InstanceRef{Type: policy.TypeDocument, Key: strings.TrimPrefix(r.PK, documentKeyPrefix), Tenant: tenant}, nil
	case strings.HasPrefix(r.PK, folderKeyPrefix):
		return authz.InstanceRef{Type: policy.TypeFolder, Key: strings.TrimPrefix(r.PK, folderKeyPrefix), Tenant: tenant}, nil
	}
	return authz.InstanceRef{}, fmt.Errorf("record (%q, %q) has no recognizable resource key", r.PK, r.SK)
}

// Resolver locates the application resource an opaque identifier denotes.
// The identifier space is shared between folders and documents and the
// caller does not know which kind an id is, hence the ordered fallback.
type Resolver struct {
	store *store.Store
}

func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve tries, in order: a standalone document by primary key, a nested
// document by the sort-key index, then a folder by primary key. Returns
// store.ErrNotFound when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Resource, error) {
	row, err := store.QueryRow(ctx, r.store.DB,
		"SELECT pk, sk, name, department, owner_id, created_at FROM folder_documents WHERE pk = $1 AND sk = $2",
		documentKeyPrefix+id, skMetadata)
	if err == nil {
		return rowToResource(row)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup document %q: %w", id, err)
	}

	rows, err := store.QueryRows(ctx, r.store.DB,
		"SELECT pk, sk, name, department, owner_id, created_at FROM folder_documents WHERE sk = $1",
		documentKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("lookup nested document %q: %w", id, err)
	}
	if len(rows) > 0 {
		return rowToResource(rows[0])
	}

	row, err = store.QueryRow(ctx, r.store.DB,
		"SELECT pk, sk, name, department, owner_id, created_at FROM folder_documents WHERE pk = $1 AND sk = $2",
		folderKeyPrefix+id, skFolder)
	if err == nil {
		return rowToResource(row)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup folder %q: %w", id, err)
	}

	return nil, store.ErrNotFound
}

func rowToResource(row map[string]any) (*Resource, error) {
	res := &Resource{
		PK:   stringCol(row, "pk"),
		SK:   stringCol(row, "sk"),
		Name: stringCol(row, "name"),
	}
	res.Department = stringCol(row, "department")
	res.OwnerID = stringCol(row, "owner_id")
	if t, ok := row["created_at"].(time.Time); ok {
		res.CreatedAt = t
	}

	switch {
	case res.SK == skFolder:
		res.Kind = KindFolder
		res.ID = strings.TrimPrefix(res.PK, folderKeyPrefix)
	case strings.HasPrefix(res.SK, documentKeyPrefix):
		res.Kind = KindDocument
		res.ID = strings.TrimPrefix(res.SK, documentKeyPrefix)
		res.FolderID = strings.TrimPrefix(res.PK, folderKeyPrefix)
	case res.SK == skMetadata:
		res.Kind = KindDocument
		res.ID = strings.TrimPrefix(res.PK, documentKeyPrefix)
	default:
		return nil, fmt.Errorf("record (%q, %q) has an unknown key layout", res.PK, res.SK)
	}
	return res, nil
}

func stringCol(row map[string]any, col string) string {
	if v, ok := row[col].(string); ok {
		return v
	}
	return ""
}
