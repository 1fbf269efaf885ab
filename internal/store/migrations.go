package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/textgate/textgate/internal/model"
)

func (s *Store) migrate() error {
	// Column types that differ between dialects.
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "DATETIME"
	switch s.driver {
	case "postgres":
		pk = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
	case "mysql":
		pk = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		ts = "DATETIME(3)"
	}

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			username VARCHAR(255) UNIQUE NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			full_name VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			is_active BOOLEAN NOT NULL,
			is_verified BOOLEAN NOT NULL,
			last_login_at %s,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, pk, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS api_keys (
			id %s,
			key_id VARCHAR(255) UNIQUE NOT NULL,
			key_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			user_id BIGINT NOT NULL,
			role VARCHAR(32) NOT NULL,
			is_active BOOLEAN NOT NULL,
			rate_limit_per_hour BIGINT NOT NULL,
			rate_limit_per_day BIGINT NOT NULL,
			rate_limit_per_month BIGINT NOT NULL,
			usage_count_hour BIGINT NOT NULL,
			usage_count_day BIGINT NOT NULL,
			usage_count_month BIGINT NOT NULL,
			total_usage BIGINT NOT NULL,
			last_reset_hour %s NOT NULL,
			last_reset_day %s NOT NULL,
			last_reset_month %s NOT NULL,
			expires_at %s,
			created_at %s NOT NULL,
			last_used_at %s,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`, pk, ts, ts, ts, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS usage_logs (
			id %s,
			user_id BIGINT NOT NULL,
			api_key_id BIGINT,
			endpoint VARCHAR(255) NOT NULL,
			method VARCHAR(16) NOT NULL,
			model VARCHAR(255) NOT NULL,
			prompt_tokens BIGINT NOT NULL,
			completion_tokens BIGINT NOT NULL,
			total_tokens BIGINT NOT NULL,
			latency_ms DOUBLE PRECISION NOT NULL,
			status_code INTEGER NOT NULL,
			ip_address VARCHAR(64) NOT NULL,
			user_agent VARCHAR(512) NOT NULL,
			created_at %s NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE SET NULL
		)`, pk, ts),

		// The live authorization path uses the in-code permission table;
		// these two tables mirror it for inspection and future per-role
		// customization.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS permissions (
			id %s,
			resource VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			UNIQUE (resource, action)
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS role_permissions (
			id %s,
			role VARCHAR(32) NOT NULL,
			permission_id BIGINT NOT NULL,
			UNIQUE (role, permission_id),
			FOREIGN KEY (permission_id) REFERENCES permissions(id) ON DELETE CASCADE
		)`, pk),

		`CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(255) PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX idx_api_keys_user_id ON api_keys(user_id)`,
		`CREATE INDEX idx_usage_logs_user_id ON usage_logs(user_id)`,
		`CREATE INDEX idx_usage_logs_api_key_id ON usage_logs(api_key_id)`,
		`CREATE INDEX idx_usage_logs_created_at ON usage_logs(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS, and re-running
			// migrations is expected to be a no-op everywhere.
			if isDuplicateObjectErr(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return s.seedPermissions()
}

// isDuplicateObjectErr reports whether err indicates an index or column that
// already exists, which migrations treat as a no-op.
func isDuplicateObjectErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "duplicate key name") ||
		strings.Contains(msg, "already exists")
}

// seedPermissions materializes the static role/permission table into the
// permissions and role_permissions tables. Seeding is idempotent.
func (s *Store) seedPermissions() error {
	roles := []model.Role{model.RoleAdmin, model.RoleDeveloper, model.RoleUser, model.RoleReadOnly}

	for _, role := range roles {
		for resource, actions := range role.Permissions() {
			for _, action := range actions {
				permID, err := s.ensurePermission(resource, action)
				if err != nil {
					return fmt.Errorf("seed permission %s:%s: %w", resource, action, err)
				}
				if err := s.ensureRolePermission(role, permID); err != nil {
					return fmt.Errorf("seed role permission %s -> %s:%s: %w", role, resource, action, err)
				}
			}
		}
	}
	return nil
}

func (s *Store) ensurePermission(resource, action string) (int64, error) {
	var id int64
	err := s.db.Get(&id, s.rebind("SELECT id FROM permissions WHERE resource = ? AND action = ?"), resource, action)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	if s.driver == "postgres" {
		err = s.db.Get(&id, s.rebind("INSERT INTO permissions (resource, action) VALUES (?, ?) RETURNING id"), resource, action)
		return id, err
	}
	result, err := s.db.Exec(s.rebind("INSERT INTO permissions (resource, action) VALUES (?, ?)"), resource, action)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) ensureRolePermission(role model.Role, permID int64) error {
	var count int
	err := s.db.Get(&count, s.rebind("SELECT COUNT(*) FROM role_permissions WHERE role = ? AND permission_id = ?"), string(role), permID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = s.db.Exec(s.rebind("INSERT INTO role_permissions (role, permission_id) VALUES (?, ?)"), string(role), permID)
	return err
}
