package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

const userColumns = "id, name, email, role_id, is_admin, active"

// Directory is the SQL-backed user and role directory. It satisfies
// engine.Identity.
type Directory struct {
	store *store.Store
}

func NewDirectory(s *store.Store) *Directory {
	return &Directory{store: s}
}

// NewUser is the input for CreateUser.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	RoleID   int64  `json:"role_id"`
	IsAdmin  bool   `json:"is_admin"`
}

// UserUpdate carries the fields UpdateUser changes; nil fields are kept.
type UserUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
	RoleID   *int64  `json:"role_id"`
	IsAdmin  *bool   `json:"is_admin"`
	Active   *bool   `json:"active"`
}

// ResolveUser returns an active user. Deactivated users report
// store.ErrNotFound so they can no longer act on records.
func (d *Directory) ResolveUser(ctx context.Context, id int64) (*metadata.User, error) {
	user, err := d.LookupUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, store.ErrNotFound
	}
	return user, nil
}

// LookupUser returns a user whether or not the account is active.
func (d *Directory) LookupUser(ctx context.Context, id int64) (*metadata.User, error) {
	pb := d.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, d.store.DB,
		"SELECT "+userColumns+" FROM _users WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return nil, d.mapErr(err)
	}
	return scanUser(row), nil
}

func (d *Directory) ResolveRole(ctx context.Context, id int64) (*metadata.Role, error) {
	pb := d.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, d.store.DB,
		"SELECT id, name, capability FROM _roles WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return nil, d.mapErr(err)
	}
	return scanRole(row), nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]*metadata.User, error) {
	rows, err := store.QueryRows(ctx, d.store.DB, "SELECT "+userColumns+" FROM _users ORDER BY id")
	if err != nil {
		return nil, d.mapErr(err)
	}
	users := make([]*metadata.User, len(rows))
	for i, row := range rows {
		users[i] = scanUser(row)
	}
	return users, nil
}

func (d *Directory) ListRoles(ctx context.Context) ([]*metadata.Role, error) {
	rows, err := store.QueryRows(ctx, d.store.DB, "SELECT id, name, capability FROM _roles ORDER BY id")
	if err != nil {
		return nil, d.mapErr(err)
	}
	roles := make([]*metadata.Role, len(rows))
	for i, row := range rows {
		roles[i] = scanRole(row)
	}
	return roles, nil
}

// CreateRole adds a role. Duplicate names report store.ErrUniqueViolation.
func (d *Directory) CreateRole(ctx context.Context, name string, capability metadata.Capability) (*metadata.Role, error) {
	pb := d.store.Dialect.NewParamBuilder()
	q := fmt.Sprintf("INSERT INTO _roles (name, capability) VALUES (%s, %s) RETURNING id",
		pb.Add(name), pb.Add(string(capability)))

	role := &metadata.Role{Name: name, Capability: capability}
	if err := d.store.DB.QueryRowContext(ctx, q, pb.Params()...).Scan(&role.ID); err != nil {
		return nil, d.mapErr(err)
	}
	return role, nil
}

// UpdateRole renames a role and/or changes its capability. An unknown id
// reports store.ErrNotFound.
func (d *Directory) UpdateRole(ctx context.Context, id int64, name string, capability metadata.Capability) (*metadata.Role, error) {
	pb := d.store.Dialect.NewParamBuilder()
	q := fmt.Sprintf("UPDATE _roles SET name = %s, capability = %s WHERE id = %s",
		pb.Add(name), pb.Add(string(capability)), pb.Add(id))
	n, err := store.Exec(ctx, d.store.DB, q, pb.Params()...)
	if err != nil {
		return nil, d.mapErr(err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return &metadata.Role{ID: id, Name: name, Capability: capability}, nil
}

// DeleteRole removes a role. A role still held by a user or recorded on an
// approval reports store.ErrForeignKeyViolation.
func (d *Directory) DeleteRole(ctx context.Context, id int64) error {
	pb := d.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, d.store.DB, "DELETE FROM _roles WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return d.mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateUser adds a user with a bcrypt-hashed password. Duplicate email or
// phone reports store.ErrUniqueViolation; an unknown role id reports
// store.ErrForeignKeyViolation.
func (d *Directory) CreateUser(ctx context.Context, in NewUser) (*metadata.User, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var phone, roleID any
	if in.Phone != "" {
		phone = in.Phone
	}
	if in.RoleID != 0 {
		roleID = in.RoleID
	}

	dialect := d.store.Dialect
	now := dialect.TimeParam(time.Now())
	pb := dialect.NewParamBuilder()
	q := fmt.Sprintf(`INSERT INTO _users (name, email, phone, password_hash, role_id, is_admin, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		pb.Add(in.Name), pb.Add(strings.ToLower(in.Email)), pb.Add(phone), pb.Add(hash),
		pb.Add(roleID), pb.Add(in.IsAdmin), pb.Add(now), pb.Add(now))

	user := &metadata.User{Name: in.Name, Email: strings.ToLower(in.Email), RoleID: in.RoleID, IsAdmin: in.IsAdmin, Active: true}
	if err := d.store.DB.QueryRowContext(ctx, q, pb.Params()...).Scan(&user.ID); err != nil {
		return nil, d.mapErr(err)
	}
	return user, nil
}

// UpdateUser applies the non-nil fields of in. Errors follow CreateUser;
// an unknown id reports store.ErrNotFound.
func (d *Directory) UpdateUser(ctx context.Context, id int64, in UserUpdate) (*metadata.User, error) {
	dialect := d.store.Dialect
	pb := dialect.NewParamBuilder()
	var sets []string
	set := func(col string, v any) {
		sets = append(sets, col+" = "+pb.Add(v))
	}

	if in.Name != nil {
		set("name", *in.Name)
	}
	if in.Email != nil {
		set("email", strings.ToLower(*in.Email))
	}
	if in.Phone != nil {
		var phone any
		if *in.Phone != "" {
			phone = *in.Phone
		}
		set("phone", phone)
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		set("password_hash", hash)
	}
	if in.RoleID != nil {
		var roleID any
		if *in.RoleID != 0 {
			roleID = *in.RoleID
		}
		set("role_id", roleID)
	}
	if in.IsAdmin != nil {
		set("is_admin", *in.IsAdmin)
	}
	if in.Active != nil {
		set("active", *in.Active)
	}
	if len(sets) == 0 {
		return d.LookupUser(ctx, id)
	}
	set("updated_at", dialect.TimeParam(time.Now()))

	q := "UPDATE _users SET " + strings.Join(sets, ", ") + " WHERE id = " + pb.Add(id)
	n, err := store.Exec(ctx, d.store.DB, q, pb.Params()...)
	if err != nil {
		return nil, d.mapErr(err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return d.LookupUser(ctx, id)
}

// DeleteUser removes a user and their refresh tokens. A user still
// referenced by a form or a record reports store.ErrForeignKeyViolation.
func (d *Directory) DeleteUser(ctx context.Context, id int64) error {
	pb := d.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, d.store.DB, "DELETE FROM _users WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return d.mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Authenticate checks an email/password pair. Unknown emails, wrong
// passwords and disabled accounts all report ErrInvalidCredentials.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*metadata.User, error) {
	pb := d.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, d.store.DB,
		"SELECT "+userColumns+", password_hash FROM _users WHERE email = "+pb.Add(strings.ToLower(email)),
		pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, d.mapErr(err)
	}
	if !cast.ToBool(row["active"]) || !CheckPassword(password, cast.ToString(row["password_hash"])) {
		return nil, ErrInvalidCredentials
	}
	return scanUser(row), nil
}

// IssueRefreshToken stores a new refresh token for the user.
func (d *Directory) IssueRefreshToken(ctx context.Context, userID int64) (string, error) {
	token := GenerateRefreshToken()
	dialect := d.store.Dialect
	pb := dialect.NewParamBuilder()
	q := fmt.Sprintf("INSERT INTO _refresh_tokens (user_id, token, expires_at, created_at) VALUES (%s, %s, %s, %s)",
		pb.Add(userID), pb.Add(token), pb.Add(dialect.TimeParam(time.Now().Add(RefreshTokenTTL))), pb.Add(dialect.TimeParam(time.Now())))
	if _, err := store.Exec(ctx, d.store.DB, q, pb.Params()...); err != nil {
		return "", d.mapErr(err)
	}
	return token, nil
}

// ConsumeRefreshToken deletes the token (rotation) and returns its user.
// Unknown and expired tokens report ErrInvalidCredentials.
func (d *Directory) ConsumeRefreshToken(ctx context.Context, token string) (*metadata.User, error) {
	dialect := d.store.Dialect
	var userID int64
	expired := false
	err := d.store.InTx(ctx, func(q store.Querier) error {
		pb := dialect.NewParamBuilder()
		row, err := store.QueryRow(ctx, q,
			"SELECT id, user_id, expires_at FROM _refresh_tokens WHERE token = "+pb.Add(token)+dialect.ForUpdate(),
			pb.Params()...)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCredentials
			}
			return dialect.MapError(err)
		}

		pb = dialect.NewParamBuilder()
		if _, err := store.Exec(ctx, q, "DELETE FROM _refresh_tokens WHERE id = "+pb.Add(row["id"]), pb.Params()...); err != nil {
			return dialect.MapError(err)
		}

		expiresAt, ok := store.ParseTime(row["expires_at"])
		// the delete still commits for expired tokens
		expired = !ok || time.Now().After(expiresAt)
		userID = cast.ToInt64(row["user_id"])
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrInvalidCredentials
	}
	user, err := d.ResolveUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	return user, err
}

// RevokeRefreshToken deletes a refresh token if it exists.
func (d *Directory) RevokeRefreshToken(ctx context.Context, token string) error {
	pb := d.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, d.store.DB, "DELETE FROM _refresh_tokens WHERE token = "+pb.Add(token), pb.Params()...)
	return d.mapErr(err)
}

func (d *Directory) mapErr(err error) error {
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return d.store.Dialect.MapError(err)
}

func scanUser(row map[string]any) *metadata.User {
	return &metadata.User{
		ID:      cast.ToInt64(row["id"]),
		Name:    cast.ToString(row["name"]),
		Email:   cast.ToString(row["email"]),
		RoleID:  cast.ToInt64(row["role_id"]),
		IsAdmin: cast.ToBool(row["is_admin"]),
		Active:  cast.ToBool(row["active"]),
	}
}

func scanRole(row map[string]any) *metadata.Role {
	return &metadata.Role{
		ID:         cast.ToInt64(row["id"]),
		Name:       cast.ToString(row["name"]),
		Capability: metadata.Capability(cast.ToString(row["capability"])),
	}
}
