package services

import (
	"context"
	"sort"
	"time"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// AuthorizationRecorder observes relation writes and filter outcomes. It may be nil.
type AuthorizationRecorder interface {
	RelationsWritten(op models.ImportOpCode, count int)
	MatchesSuppressed(count int)
	PermissionCheckFailed()
}

// AuthorizationService writes ownership relations and filters query matches
// down to what a user may read.
type AuthorizationService struct {
	directory   Directory
	concurrency int
	timeout     time.Duration
	recorder    AuthorizationRecorder
}

// NewAuthorizationService creates the service. concurrency bounds in-flight
// permission checks; timeout bounds each individual check.
func NewAuthorizationService(directory Directory, concurrency int, timeout time.Duration, recorder AuthorizationRecorder) *AuthorizationService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AuthorizationService{
		directory:   directory,
		concurrency: concurrency,
		timeout:     timeout,
		recorder:    recorder,
	}
}

// BuildAssignOperations produces the directory import for an ownership assignment:
// the user object, each granted resource object once, and one owner relation per
// (user, vector) whose category the user was granted.
func BuildAssignOperations(assignment models.OwnershipAssignment, vectors []models.EmbeddedVector) []models.ImportOperation {
	var ops []models.ImportOperation
	resources := map[string]bool{}
	for _, grant := range assignment.Users {
		user := grant.User
		ops = append(ops, models.ImportOperation{
			OpCode: models.ImportOpSet,
			Object: &models.DirectoryObject{
				Type:        models.ObjectTypeUser,
				ID:          user.ID,
				DisplayName: user.DisplayName(),
				Properties: map[string]any{
					"email":   user.Email,
					"name":    user.Name,
					"picture": user.Picture,
				},
			},
		})
		for _, v := range vectors {
			if !grant.Matches(v.Metadata.Category) {
				continue
			}
			if !resources[v.ID] {
				resources[v.ID] = true
				ops = append(ops, models.ImportOperation{
					OpCode: models.ImportOpSet,
					Object: resourceObject(v),
				})
			}
			rel := models.NewOwnerRelation(user.ID, v.ID)
			ops = append(ops, models.ImportOperation{OpCode: models.ImportOpSet, Relation: &rel})
		}
	}
	return ops
}

func resourceObject(v models.EmbeddedVector) *models.DirectoryObject {
	displayName := v.Metadata.Title
	if displayName == "" {
		displayName = v.Metadata.URL
	}
	return &models.DirectoryObject{
		Type:        models.ObjectTypeResource,
		ID:          v.ID,
		DisplayName: displayName,
		Properties: map[string]any{
			"url":      v.Metadata.URL,
			"category": v.Metadata.Category,
		},
	}
}

// AssignRelations writes the ownership assignment for vectors. Re-running it is
// harmless because SET is idempotent.
func (s *AuthorizationService) AssignRelations(
	ctx context.Context,
	assignment models.OwnershipAssignment,
	vectors []models.EmbeddedVector,
) (models.ImportResult, error) {
	ctx, span := middleware.StartSpan(ctx, "Authorization.AssignRelations",
		attribute.Int("users.count", len(assignment.Users)),
		attribute.Int("vectors.count", len(vectors)),
	)
	defer span.End()

	ops := BuildAssignOperations(assignment, vectors)
	if len(ops) == 0 {
		return models.ImportResult{}, nil
	}
	result, err := s.directory.Import(ctx, ops)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return result, err
	}
	if s.recorder != nil {
		s.recorder.RelationsWritten(models.ImportOpSet, result.RelationsSet)
	}
	logger.FromContext(ctx).Info("relations assigned",
		"users", len(assignment.Users),
		"relations", result.RelationsSet,
		"objects", result.ObjectsSet,
	)
	return result, nil
}

// Unassign revokes a relation between a user and each of the given vectors
func (s *AuthorizationService) Unassign(ctx context.Context, userID, relation string, vectorIDs []string) (models.ImportResult, error) {
	ctx, span := middleware.StartSpan(ctx, "Authorization.Unassign",
		attribute.String("user.id", userID),
		attribute.Int("vectors.count", len(vectorIDs)),
	)
	defer span.End()

	if userID == "" {
		return models.ImportResult{}, &models.ValidationError{Fields: []string{"userId"}, Reason: "user id is required"}
	}
	if relation == "" {
		relation = models.RelationOwner
	}
	ops := make([]models.ImportOperation, 0, len(vectorIDs))
	for _, id := range vectorIDs {
		ops = append(ops, models.ImportOperation{
			OpCode: models.ImportOpDelete,
			Relation: &models.Relation{
				SubjectType: models.ObjectTypeUser,
				SubjectID:   userID,
				Relation:    relation,
				ObjectType:  models.ObjectTypeResource,
				ObjectID:    id,
			},
		})
	}
	if len(ops) == 0 {
		return models.ImportResult{}, nil
	}
	result, err := s.directory.Import(ctx, ops)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return result, err
	}
	if s.recorder != nil {
		s.recorder.RelationsWritten(models.ImportOpDelete, result.RelationsDeleted)
	}
	return result, nil
}

// FilterMatches keeps the matches the user may read, in their original order.
// An anonymous user keeps nothing. A check that errors or times out denies
// only its own match.
func (s *AuthorizationService) FilterMatches(ctx context.Context, user *models.User, matches []models.ScoredMatch) []models.ScoredMatch {
	ctx, span := middleware.StartSpan(ctx, "Authorization.FilterMatches",
		attribute.Int("matches.count", len(matches)),
	)
	defer span.End()

	log := logger.FromContext(ctx)
	if user == nil || user.ID == "" {
		if len(matches) > 0 {
			s.logSuppressed(ctx, matches)
		}
		return []models.ScoredMatch{}
	}

	allowed := make([]bool, len(matches))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range matches {
		i := i
		g.Go(func() error {
			checkCtx := ctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				checkCtx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}
			ok, err := s.directory.CheckPermission(checkCtx, models.PermissionCheck{
				SubjectID:  user.ID,
				ObjectID:   matches[i].ID,
				Permission: models.PermissionRead,
			})
			if err != nil {
				log.Warn("permission check failed, denying match", "object_id", matches[i].ID, "error", err)
				middleware.AddSpanEvent(ctx, "permission.check_failed", attribute.String("object.id", matches[i].ID))
				if s.recorder != nil {
					s.recorder.PermissionCheckFailed()
				}
				return nil
			}
			allowed[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]models.ScoredMatch, 0, len(matches))
	var denied []models.ScoredMatch
	for i, m := range matches {
		if allowed[i] {
			kept = append(kept, m)
		} else {
			denied = append(denied, m)
		}
	}
	if len(denied) > 0 {
		s.logSuppressed(ctx, denied)
	}
	return kept
}

// logSuppressed reports the categories of denied matches, never their content
func (s *AuthorizationService) logSuppressed(ctx context.Context, denied []models.ScoredMatch) {
	seen := map[string]bool{}
	var categories []string
	for _, m := range denied {
		c := m.Metadata.Category
		if c == "" {
			c = "uncategorized"
		}
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	middleware.AddSpanEvent(ctx, "matches.suppressed", attribute.Int("count", len(denied)))
	logger.FromContext(ctx).Info("matches suppressed by permission filter",
		"count", len(denied),
		"categories", categories,
	)
	if s.recorder != nil {
		s.recorder.MatchesSuppressed(len(denied))
	}
}
