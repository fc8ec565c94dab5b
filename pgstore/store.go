// Package pgstore backs the user directory and the route configuration
// store with PostgreSQL via the pgx stdlib driver.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tmarces/appsec"
	"github.com/tmarces/appsec/routeauth"
)

// Store implements appsec.UserDirectory and routeauth.ConfigStore over
// one shared database handle.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetUser loads the account record, including group memberships. A
// missing account returns (nil, nil).
func (s *Store) GetUser(ctx context.Context, appID, username string) (*appsec.UserRecord, error) {
	var user appsec.UserRecord
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, password_hash, user_type_id, disabled, email
		FROM app_users
		WHERE app_id = $1 AND username = $2
	`, appID, username).Scan(&user.UserID, &user.Username, &user.PasswordHash, &user.UserType, &user.Disabled, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if email.Valid {
		user.Email = email.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id
		FROM app_user_groups
		WHERE app_id = $1 AND user_id = $2
	`, appID, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		user.Groups = append(user.Groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user groups: %w", err)
	}

	return &user, nil
}

// RecordLoginAttempt appends one attempt to the audit trail.
func (s *Store) RecordLoginAttempt(ctx context.Context, appID, userID string, success bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_login_attempts (app_id, user_id, success, attempted_at)
		VALUES ($1, $2, $3, $4)
	`, appID, userID, success, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

// RotateRefreshToken mirrors the account's current refresh token.
func (s *Store) RotateRefreshToken(ctx context.Context, appID, userID, token string, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_refresh_tokens (app_id, user_id, token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id, user_id)
		DO UPDATE SET
			token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, appID, userID, token, expires.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert refresh token: %w", err)
	}
	return nil
}

// GetEmailTemplate loads one email template body. A missing template
// returns ("", nil).
func (s *Store) GetEmailTemplate(ctx context.Context, appID, templateID string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body
		FROM app_email_templates
		WHERE app_id = $1 AND template_id = $2
	`, appID, templateID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query email template: %w", err)
	}
	return body, nil
}

// GetRecoveryEmails returns the account's recovery addresses.
func (s *Store) GetRecoveryEmails(ctx context.Context, appID, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.email
		FROM app_recovery_emails r
		JOIN app_users u ON u.app_id = r.app_id AND u.user_id = r.user_id
		WHERE r.app_id = $1 AND u.username = $2
	`, appID, username)
	if err != nil {
		return nil, fmt.Errorf("query recovery emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan recovery email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovery emails: %w", err)
	}
	return emails, nil
}

// GroupRoutes returns every allowed-route grant for the application.
func (s *Store) GroupRoutes(ctx context.Context, appID string) ([]routeauth.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.group_id, r.route_id, r.route_path, g.last_updated
		FROM app_group_routes g
		JOIN app_routes r ON r.app_id = g.app_id AND r.route_id = g.route_id
		WHERE g.app_id = $1
	`, appID)
	if err != nil {
		return nil, fmt.Errorf("query group routes: %w", err)
	}
	defer rows.Close()

	var out []routeauth.Row
	for rows.Next() {
		var row routeauth.Row
		if err := rows.Scan(&row.GroupID, &row.RouteID, &row.RoutePath, &row.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan group route: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group routes: %w", err)
	}
	return out, nil
}
