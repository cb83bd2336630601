package repository

import (
	"context"
	"fmt"
	"time"

	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/*
Local policy directory.

Objects and relations live in two tables. Relations are soft-deleted, so a
revoked grant can be SET again: the upsert on the relation tuple clears
deleted_at instead of inserting a second row.

  user:<id> --owner--> resource:<vector id>   =>  can_read, can_write, can_delete
  user:<id> --viewer--> resource:<vector id>  =>  can_read
*/

// DirectoryRepositoryImpl answers permission checks from Postgres
type DirectoryRepositoryImpl struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *gorm.DB) *DirectoryRepositoryImpl {
	return &DirectoryRepositoryImpl{db: db}
}

var relationTuple = []clause.Column{
	{Name: "subject_type"},
	{Name: "subject_id"},
	{Name: "relation"},
	{Name: "object_type"},
	{Name: "object_id"},
}

// Import applies SET and DELETE operations in order inside one transaction
func (r *DirectoryRepositoryImpl) Import(ctx context.Context, ops []models.ImportOperation) (models.ImportResult, error) {
	ctx, span := middleware.StartSpan(ctx, "DirectoryRepository.Import",
		attribute.Int("operations.count", len(ops)),
	)
	defer span.End()

	var result models.ImportResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range ops {
			var err error
			switch {
			case op.Object != nil && op.OpCode == models.ImportOpSet:
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "type"}, {Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{"display_name", "properties", "updated_at"}),
				}).Create(op.Object).Error
				result.ObjectsSet++
			case op.Object != nil && op.OpCode == models.ImportOpDelete:
				err = tx.Where("type = ? AND id = ?", op.Object.Type, op.Object.ID).
					Delete(&models.DirectoryObject{}).Error
				result.ObjectsDeleted++
			case op.Relation != nil && op.OpCode == models.ImportOpSet:
				rel := *op.Relation
				rel.ID = ""
				err = tx.Clauses(clause.OnConflict{
					Columns: relationTuple,
					DoUpdates: clause.Assignments(map[string]any{
						"deleted_at": nil,
						"updated_at": time.Now(),
					}),
				}).Create(&rel).Error
				result.RelationsSet++
			case op.Relation != nil && op.OpCode == models.ImportOpDelete:
				rel := op.Relation
				err = tx.Where("subject_type = ? AND subject_id = ? AND relation = ? AND object_type = ? AND object_id = ?",
					rel.SubjectType, rel.SubjectID, rel.Relation, rel.ObjectType, rel.ObjectID).
					Delete(&models.Relation{}).Error
				result.RelationsDeleted++
			default:
				err = &models.ValidationError{
					Fields: []string{fmt.Sprintf("operations[%d]", i)},
					Reason: "operation must carry exactly one object or relation and a known op code",
				}
			}
			if err != nil {
				return fmt.Errorf("failed to apply %s operation %d: %w", op.OpCode, i, err)
			}
		}
		return nil
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		if models.IsValidation(err) {
			return models.ImportResult{}, err
		}
		return models.ImportResult{}, models.NewProviderError("directory", "import", err)
	}
	return result, nil
}

// CheckPermission reports whether the user holds a relation that grants the permission
func (r *DirectoryRepositoryImpl) CheckPermission(ctx context.Context, check models.PermissionCheck) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Relation{}).
		Where("subject_type = ? AND subject_id = ? AND object_type = ? AND object_id = ?",
			models.ObjectTypeUser, check.SubjectID, models.ObjectTypeResource, check.ObjectID).
		Where("relation IN ?", models.RelationsGranting(check.Permission)).
		Count(&count).Error
	if err != nil {
		return false, models.NewProviderError("directory", "check", err)
	}
	return count > 0, nil
}
