package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkpress/inkpress/internal/auth"
	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/util"
)

// Default admin credentials
const (
	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "changeme"
	DefaultAdminName     = "Administrator"
)

// Seed creates initial data in the database: the default admin account and a
// starter set of categories. Safe to run repeatedly.
func Seed(ctx context.Context, db *sql.DB) error {
	queries := New(db)

	// Check if admin user already exists
	_, err := queries.GetUserByEmail(ctx, DefaultAdminEmail)
	if err == nil {
		slog.Info("admin user already exists, skipping seed")
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for admin user: %w", err)
	}

	passwordHash, err := auth.HashPassword(DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user, err := queries.CreateUser(ctx, CreateUserParams{
		Email:        DefaultAdminEmail,
		PasswordHash: passwordHash,
		Role:         model.RoleAdmin,
		Name:         DefaultAdminName,
	})
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	slog.Info("created default admin user",
		"id", user.ID,
		"email", user.Email,
		"password", DefaultAdminPassword,
	)

	starterCategories := []struct {
		name, description string
	}{
		{"Development", "Software development articles"},
		{"Tutorial", "Step-by-step guides"},
		{"News", "Latest updates and news"},
	}
	for _, c := range starterCategories {
		if _, err := queries.CreateCategory(ctx, CreateCategoryParams{
			Name:        c.name,
			Slug:        util.Slugify(c.name),
			Description: util.NullStringFromValue(c.description),
		}); err != nil {
			return fmt.Errorf("creating category %q: %w", c.name, err)
		}
	}

	return nil
}
