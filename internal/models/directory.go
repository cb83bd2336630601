package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
Policy directory model.

The directory holds typed objects (users, resources) and relations between them:

  user:alice@example.com  --owner-->  resource:<vector id>

Permissions are derived from relations. A check asks "does subject S have
permission P on object O", and is answered from the relation set.
*/

const (
	ObjectTypeUser     = "user"
	ObjectTypeResource = "resource"

	RelationOwner  = "owner"
	RelationViewer = "viewer"
)

// Permission is an action checked against the directory
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionDelete Permission = "delete"
)

// CheckName is the permission name the directory model exposes for p
func (p Permission) CheckName() string {
	return "can_" + string(p)
}

// relationPermissions maps each relation to the permissions it grants
var relationPermissions = map[string][]Permission{
	RelationOwner:  {PermissionRead, PermissionWrite, PermissionDelete},
	RelationViewer: {PermissionRead},
}

// RelationGrants reports whether holding relation grants permission
func RelationGrants(relation string, permission Permission) bool {
	for _, p := range relationPermissions[relation] {
		if p == permission {
			return true
		}
	}
	return false
}

// RelationsGranting lists every relation that grants permission
func RelationsGranting(permission Permission) []string {
	var out []string
	for _, rel := range []string{RelationOwner, RelationViewer} {
		if RelationGrants(rel, permission) {
			out = append(out, rel)
		}
	}
	return out
}

// DirectoryObject is a typed object in the directory
type DirectoryObject struct {
	Type        string         `json:"type" gorm:"type:varchar(50);primaryKey"`
	ID          string         `json:"id" gorm:"type:varchar(255);primaryKey"`
	DisplayName string         `json:"display_name" gorm:"type:text"`
	Properties  map[string]any `json:"properties" gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName override
func (DirectoryObject) TableName() string {
	return "directory_objects"
}

// Relation is an authorization grant: subject --relation--> object
type Relation struct {
	ID          string         `json:"id" gorm:"type:varchar(27);primaryKey"`
	SubjectType string         `json:"subject_type" gorm:"type:varchar(50);not null;uniqueIndex:idx_relation_tuple"`
	SubjectID   string         `json:"subject_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_relation_tuple"`
	Relation    string         `json:"relation" gorm:"type:varchar(50);not null;uniqueIndex:idx_relation_tuple"`
	ObjectType  string         `json:"object_type" gorm:"type:varchar(50);not null;uniqueIndex:idx_relation_tuple"`
	ObjectID    string         `json:"object_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_relation_tuple;index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate generates KSUID before creating
func (r *Relation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (Relation) TableName() string {
	return "directory_relations"
}

// NewOwnerRelation is the grant written when a user is assigned a vector
func NewOwnerRelation(userID, vectorID string) Relation {
	return Relation{
		SubjectType: ObjectTypeUser,
		SubjectID:   userID,
		Relation:    RelationOwner,
		ObjectType:  ObjectTypeResource,
		ObjectID:    vectorID,
	}
}

// ImportOpCode is the action applied by one import operation
type ImportOpCode int

const (
	ImportOpSet ImportOpCode = iota + 1
	ImportOpDelete
)

func (c ImportOpCode) String() string {
	switch c {
	case ImportOpSet:
		return "SET"
	case ImportOpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ImportOperation carries exactly one of Object or Relation
type ImportOperation struct {
	OpCode   ImportOpCode
	Object   *DirectoryObject
	Relation *Relation
}

// ImportResult counts what an import applied
type ImportResult struct {
	ObjectsSet       int `json:"objects_set"`
	ObjectsDeleted   int `json:"objects_deleted"`
	RelationsSet     int `json:"relations_set"`
	RelationsDeleted int `json:"relations_deleted"`
}

// Add folds another result into r
func (r *ImportResult) Add(other ImportResult) {
	r.ObjectsSet += other.ObjectsSet
	r.ObjectsDeleted += other.ObjectsDeleted
	r.RelationsSet += other.RelationsSet
	r.RelationsDeleted += other.RelationsDeleted
}

// PermissionCheck asks whether a user holds a permission on a resource
type PermissionCheck struct {
	SubjectID  string
	ObjectID   string
	Permission Permission
}
