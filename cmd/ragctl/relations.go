package main

import (
	"context"

	"rag-chat/internal/app"
	"rag-chat/internal/models"

	"github.com/spf13/cobra"
)

var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "Grant or revoke access to vectors",
}

var relationsAssignCmd = &cobra.Command{
	Use:   "assign [vector-id...]",
	Short: "Make a user owner of the given vectors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRelationsAssign,
}

var relationsUnassignCmd = &cobra.Command{
	Use:   "unassign [vector-id...]",
	Short: "Revoke a user's relation to the given vectors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRelationsUnassign,
}

var (
	relationUser     string
	relationEmail    string
	relationName     string
	relationRelation string
)

func init() {
	for _, c := range []*cobra.Command{relationsAssignCmd, relationsUnassignCmd} {
		c.Flags().StringVarP(&relationUser, "user", "u", "", "User id")
		_ = c.MarkFlagRequired("user")
	}
	relationsAssignCmd.Flags().StringVar(&relationEmail, "email", "", "User email")
	relationsAssignCmd.Flags().StringVar(&relationName, "name", "", "User display name")
	relationsUnassignCmd.Flags().StringVar(&relationRelation, "relation", models.RelationOwner, "Relation to revoke")

	relationsCmd.AddCommand(relationsAssignCmd)
	relationsCmd.AddCommand(relationsUnassignCmd)
	rootCmd.AddCommand(relationsCmd)
}

func runRelationsAssign(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		vectors := make([]models.EmbeddedVector, 0, len(args))
		for _, id := range args {
			vectors = append(vectors, models.EmbeddedVector{
				ID:       id,
				Metadata: models.VectorMetadata{SchemaVersion: models.MetadataSchemaVersion, Hash: id},
			})
		}
		assignment := models.OwnershipAssignment{Users: []models.UserGrant{{
			User:       models.User{ID: relationUser, Email: relationEmail, Name: relationName},
			Categories: []string{models.AllCategories},
		}}}
		result, err := a.Auth.AssignRelations(ctx, assignment, vectors)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	})
}

func runRelationsUnassign(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		result, err := a.Auth.Unassign(ctx, relationUser, relationRelation, args)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	})
}
