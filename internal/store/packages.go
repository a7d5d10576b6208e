package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

// Store loads the authoritative package table from PostgreSQL. The
// visibility index is never written back; it is rebuilt from this table on
// every process start.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadState reads all package settings and active users. Settings are
// returned in install order so the boot replay into the filter is
// deterministic.
func (s *Store) LoadState(ctx context.Context) ([]*pkginfo.Setting, []pkginfo.User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, app_id, is_system, force_queryable_override,
		       signing_fingerprints, installer_package, initiating_package,
		       initiating_uninstalled, shared_user, manifest
		FROM packages
		ORDER BY installed_at, name`)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadState: %w", err)
	}
	defer rows.Close()

	var settings []*pkginfo.Setting
	for rows.Next() {
		var (
			setting      pkginfo.Setting
			fingerprints []byte
			sharedUser   sql.NullString
			manifest     []byte
		)
		if err := rows.Scan(
			&setting.Name,
			&setting.AppID,
			&setting.System,
			&setting.ForceQueryableOverride,
			&fingerprints,
			&setting.InstallSource.InstallerPackageName,
			&setting.InstallSource.InitiatingPackageName,
			&setting.InstallSource.InitiatingPackageUninstalled,
			&sharedUser,
			&manifest,
		); err != nil {
			return nil, nil, fmt.Errorf("LoadState: scan: %w", err)
		}
		if len(fingerprints) > 0 {
			if err := json.Unmarshal(fingerprints, &setting.Signing.Fingerprints); err != nil {
				return nil, nil, fmt.Errorf("LoadState: fingerprints for %s: %w", setting.Name, err)
			}
		}
		if sharedUser.Valid {
			setting.SharedUserName = sharedUser.String
		}
		if len(manifest) > 0 && string(manifest) != "null" {
			var pkg pkginfo.Package
			if err := json.Unmarshal(manifest, &pkg); err != nil {
				return nil, nil, fmt.Errorf("LoadState: manifest for %s: %w", setting.Name, err)
			}
			if pkg.Name == "" {
				pkg.Name = setting.Name
			}
			setting.Pkg = &pkg
		}
		settings = append(settings, &setting)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("LoadState: %w", err)
	}
	return settings, users, nil
}

func (s *Store) loadUsers(ctx context.Context) ([]pkginfo.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loadUsers: %w", err)
	}
	defer rows.Close()

	var users []pkginfo.User
	for rows.Next() {
		var u pkginfo.User
		if err := rows.Scan(&u.ID); err != nil {
			return nil, fmt.Errorf("loadUsers: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loadUsers: %w", err)
	}
	if len(users) == 0 {
		// a device always has the system user
		users = append(users, pkginfo.User{ID: 0})
	}
	return users, nil
}
