// Package store owns the authoritative package table: the in-memory state
// provider guarded by the package-manager lock, and the PostgreSQL loader it
// is seeded from at process start.
package store

import (
	"sync"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

// MemState is the in-memory package table and user list. Its mutex is the
// package-manager lock: every read of the table happens inside RunWithState,
// and mutations take the same lock briefly.
type MemState struct {
	mu          sync.Mutex
	settings    map[string]*pkginfo.Setting
	users       []pkginfo.User
	sharedUsers map[string]*pkginfo.SharedUser
}

// NewMemState creates an empty state with the given active users.
func NewMemState(users []pkginfo.User) *MemState {
	return &MemState{
		settings:    make(map[string]*pkginfo.Setting),
		users:       users,
		sharedUsers: make(map[string]*pkginfo.SharedUser),
	}
}

// RunWithState invokes cb with the package table and active users while
// holding the package-manager lock. The callback must not retain the map or
// call back into MemState.
func (s *MemState) RunWithState(cb func(settings map[string]*pkginfo.Setting, users []pkginfo.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb(s.settings, s.users)
}

// Upsert inserts or replaces a setting, resolving its shared-user membership.
// Returns the previous setting under the same name, if any.
func (s *MemState) Upsert(setting *pkginfo.Setting) *pkginfo.Setting {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.settings[setting.Name]
	if setting.SharedUserName != "" && setting.SharedUser == nil {
		shared, ok := s.sharedUsers[setting.SharedUserName]
		if !ok {
			shared = &pkginfo.SharedUser{Name: setting.SharedUserName}
			s.sharedUsers[setting.SharedUserName] = shared
		}
		if prior != nil && prior.SharedUser == shared {
			for i, member := range shared.Packages {
				if member == prior {
					shared.Packages = append(shared.Packages[:i], shared.Packages[i+1:]...)
					break
				}
			}
		}
		shared.Packages = append(shared.Packages, setting)
		setting.SharedUser = shared
	}
	s.settings[setting.Name] = setting
	return prior
}

// Remove deletes a setting by name, detaching it from its shared user, and
// returns it. The returned setting still references the shared user so the
// caller can re-add surviving siblings.
func (s *MemState) Remove(name string) *pkginfo.Setting {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting, ok := s.settings[name]
	if !ok {
		return nil
	}
	delete(s.settings, name)
	if shared := setting.SharedUser; shared != nil {
		for i, member := range shared.Packages {
			if member == setting {
				shared.Packages = append(shared.Packages[:i], shared.Packages[i+1:]...)
				break
			}
		}
		if len(shared.Packages) == 0 {
			delete(s.sharedUsers, shared.Name)
		}
	}
	return setting
}

// Lookup returns the setting under the given name, or nil.
func (s *MemState) Lookup(name string) *pkginfo.Setting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[name]
}

// LookupUID resolves a UID to the setting carrying its app identity, or nil.
func (s *MemState) LookupUID(uid pkginfo.UID) *pkginfo.Setting {
	appID := uid.App()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, setting := range s.settings {
		if setting.AppID == appID {
			return setting
		}
	}
	return nil
}

// PackagesForAppID lists the package names under an app identity.
func (s *MemState) PackagesForAppID(appID pkginfo.AppID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, setting := range s.settings {
		if setting.AppID == appID {
			names = append(names, setting.Name)
		}
	}
	return names
}

// SetUsers replaces the active user list.
func (s *MemState) SetUsers(users []pkginfo.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}

// UserIDs returns the active user ids.
func (s *MemState) UserIDs() []pkginfo.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]pkginfo.UserID, 0, len(s.users))
	for _, u := range s.users {
		ids = append(ids, u.ID)
	}
	return ids
}
