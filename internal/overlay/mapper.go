// Package overlay tracks which packages are permitted actors on overlay
// targets. A package that overlays a target only becomes visible through this
// channel to the packages the target names as actors.
package overlay

import (
	"sync"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

// ReferenceMapper maintains the target -> actor relation derived from
// installed packages. When constructed with deferRebuild, the relation stays
// empty until RebuildIfDeferred runs; package additions before that point are
// only recorded.
type ReferenceMapper struct {
	mu sync.Mutex

	// actors maps a target package name to the set of package names the
	// target allows to act on it.
	actors map[string]map[string]struct{}

	// overlays maps an overlay package name to its declared target.
	overlays map[string]string

	deferred bool
	pending  []*pkginfo.Package
}

// NewReferenceMapper creates a mapper. With deferRebuild set, added packages
// accumulate without building the relation until RebuildIfDeferred.
func NewReferenceMapper(deferRebuild bool) *ReferenceMapper {
	return &ReferenceMapper{
		actors:   make(map[string]map[string]struct{}),
		overlays: make(map[string]string),
		deferred: deferRebuild,
	}
}

// AddPkg records a package's overlay declarations.
func (m *ReferenceMapper) AddPkg(pkg *pkginfo.Package) {
	if pkg == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deferred {
		m.pending = append(m.pending, pkg)
		return
	}
	m.addLocked(pkg)
}

func (m *ReferenceMapper) addLocked(pkg *pkginfo.Package) {
	if pkg.OverlayTarget != "" {
		m.overlays[pkg.Name] = pkg.OverlayTarget
	}
	if len(pkg.OverlayActors) > 0 {
		set := m.actors[pkg.Name]
		if set == nil {
			set = make(map[string]struct{}, len(pkg.OverlayActors))
			m.actors[pkg.Name] = set
		}
		for _, actor := range pkg.OverlayActors {
			set[actor] = struct{}{}
		}
	}
}

// RemovePkg drops a package from the relation, both as overlay and as target.
func (m *ReferenceMapper) RemovePkg(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overlays, name)
	delete(m.actors, name)
	for i := len(m.pending) - 1; i >= 0; i-- {
		if m.pending[i].Name == name {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
		}
	}
}

// RebuildIfDeferred builds the relation from packages added while deferred.
func (m *ReferenceMapper) RebuildIfDeferred() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.deferred {
		return
	}
	m.deferred = false
	for _, pkg := range m.pending {
		m.addLocked(pkg)
	}
	m.pending = nil
}

// IsValidActor reports whether actorName is permitted to act on targetName.
// The relation holds either directly (the target names the actor) or through
// an overlay: when the target is an overlay package, its own target's actor
// set applies.
func (m *ReferenceMapper) IsValidActor(targetName, actorName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containsLocked(targetName, actorName) {
		return true
	}
	if overlaid, ok := m.overlays[targetName]; ok {
		return m.containsLocked(overlaid, actorName)
	}
	return false
}

func (m *ReferenceMapper) containsLocked(targetName, actorName string) bool {
	set, ok := m.actors[targetName]
	if !ok {
		return false
	}
	_, ok = set[actorName]
	return ok
}
