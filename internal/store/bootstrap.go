package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"formflow-backend/internal/config"
	"formflow-backend/internal/metadata"
)

// DefaultRoles are seeded on first start, one per capability.
var DefaultRoles = []metadata.Role{
	{Name: "L1", Capability: metadata.CapabilityInsert},
	{Name: "L2", Capability: metadata.CapabilityUpdateApprove},
	{Name: "L3", Capability: metadata.CapabilitySignoff},
}

// Bootstrap creates the system tables and seeds the default roles and, on an
// empty user table, one admin user holding the SIGNOFF role.
func (s *Store) Bootstrap(ctx context.Context, seed config.SeedAdminConfig, logger *zap.Logger) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedRoles(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if err := s.seedAdminUser(ctx, seed, logger); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedRoles(ctx context.Context) error {
	for _, r := range DefaultRoles {
		pb := s.Dialect.NewParamBuilder()
		q := fmt.Sprintf(`INSERT INTO _roles (name, capability) VALUES (%s, %s) ON CONFLICT (name) DO NOTHING`,
			pb.Add(r.Name), pb.Add(string(r.Capability)))
		if _, err := Exec(ctx, s.DB, q, pb.Params()...); err != nil {
			return s.Dialect.MapError(err)
		}
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, seed config.SeedAdminConfig, logger *zap.Logger) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	pb := s.Dialect.NewParamBuilder()
	var roleID int64
	err := s.DB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM _roles WHERE capability = %s ORDER BY id LIMIT 1", pb.Add(string(metadata.CapabilitySignoff))),
		pb.Params()...,
	).Scan(&roleID)
	if err != nil {
		return fmt.Errorf("find signoff role: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := s.Dialect.TimeParam(time.Now())
	pb = s.Dialect.NewParamBuilder()
	q := fmt.Sprintf(`INSERT INTO _users (name, email, password_hash, role_id, is_admin, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		pb.Add("admin"), pb.Add(strings.ToLower(seed.Email)), pb.Add(string(hash)), pb.Add(roleID), pb.Add(true), pb.Add(now), pb.Add(now))
	if _, err := Exec(ctx, s.DB, q, pb.Params()...); err != nil {
		return s.Dialect.MapError(err)
	}

	logger.Warn("default admin user created, change the password immediately",
		zap.String("email", seed.Email))
	return nil
}
