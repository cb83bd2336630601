package repository

import (
	"context"
	"testing"

	"rag-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func relationOp(code models.ImportOpCode, userID, relation, objectID string) models.ImportOperation {
	return models.ImportOperation{OpCode: code, Relation: &models.Relation{
		SubjectType: models.ObjectTypeUser,
		SubjectID:   userID,
		Relation:    relation,
		ObjectType:  models.ObjectTypeResource,
		ObjectID:    objectID,
	}}
}

func can(t *testing.T, repo *DirectoryRepositoryImpl, userID, objectID string, permission models.Permission) bool {
	t.Helper()
	ok, err := repo.CheckPermission(context.Background(), models.PermissionCheck{
		SubjectID:  userID,
		ObjectID:   objectID,
		Permission: permission,
	})
	require.NoError(t, err)
	return ok
}

func cleanupSubject(t *testing.T, database *gorm.DB, userID string) {
	t.Cleanup(func() {
		database.Unscoped().Where("subject_id = ?", userID).Delete(&models.Relation{})
		database.Where("id = ?", userID).Delete(&models.DirectoryObject{})
	})
}

func TestDirectoryRepository_RelationsGrantPermissions(t *testing.T) {
	database := openTestDB(t)
	repo := NewDirectoryRepository(database)
	owner, viewer := uniqueName("owner"), uniqueName("viewer")
	cleanupSubject(t, database, owner)
	cleanupSubject(t, database, viewer)

	result, err := repo.Import(context.Background(), []models.ImportOperation{
		relationOp(models.ImportOpSet, owner, models.RelationOwner, "v1"),
		relationOp(models.ImportOpSet, viewer, models.RelationViewer, "v1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RelationsSet)

	assert.True(t, can(t, repo, owner, "v1", models.PermissionRead))
	assert.True(t, can(t, repo, owner, "v1", models.PermissionDelete))
	assert.True(t, can(t, repo, viewer, "v1", models.PermissionRead))
	assert.False(t, can(t, repo, viewer, "v1", models.PermissionWrite))
	assert.False(t, can(t, repo, owner, "v2", models.PermissionRead))
}

func TestDirectoryRepository_RevokedRelationCanBeSetAgain(t *testing.T) {
	database := openTestDB(t)
	repo := NewDirectoryRepository(database)
	ctx := context.Background()
	user := uniqueName("user")
	cleanupSubject(t, database, user)

	_, err := repo.Import(ctx, []models.ImportOperation{relationOp(models.ImportOpSet, user, models.RelationOwner, "v1")})
	require.NoError(t, err)

	result, err := repo.Import(ctx, []models.ImportOperation{relationOp(models.ImportOpDelete, user, models.RelationOwner, "v1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RelationsDeleted)
	assert.False(t, can(t, repo, user, "v1", models.PermissionRead))

	_, err = repo.Import(ctx, []models.ImportOperation{relationOp(models.ImportOpSet, user, models.RelationOwner, "v1")})
	require.NoError(t, err)
	assert.True(t, can(t, repo, user, "v1", models.PermissionRead))

	var rows int64
	require.NoError(t, database.Unscoped().Model(&models.Relation{}).Where("subject_id = ?", user).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestDirectoryRepository_ObjectSetUpdatesInPlace(t *testing.T) {
	database := openTestDB(t)
	repo := NewDirectoryRepository(database)
	ctx := context.Background()
	user := uniqueName("user")
	cleanupSubject(t, database, user)

	for _, name := range []string{"First", "Second"} {
		_, err := repo.Import(ctx, []models.ImportOperation{{
			OpCode: models.ImportOpSet,
			Object: &models.DirectoryObject{Type: models.ObjectTypeUser, ID: user, DisplayName: name},
		}})
		require.NoError(t, err)
	}

	var objects []models.DirectoryObject
	require.NoError(t, database.Where("id = ?", user).Find(&objects).Error)
	require.Len(t, objects, 1)
	assert.Equal(t, "Second", objects[0].DisplayName)
}

func TestDirectoryRepository_InvalidOperationRollsBackImport(t *testing.T) {
	database := openTestDB(t)
	repo := NewDirectoryRepository(database)
	user := uniqueName("user")
	cleanupSubject(t, database, user)

	_, err := repo.Import(context.Background(), []models.ImportOperation{
		relationOp(models.ImportOpSet, user, models.RelationOwner, "v1"),
		{OpCode: models.ImportOpSet},
	})

	assert.True(t, models.IsValidation(err))
	assert.False(t, can(t, repo, user, "v1", models.PermissionRead))
}
