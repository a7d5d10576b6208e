// Package deviceconfig supplies the dynamic and static configuration the
// visibility filter consumes: the filtering master switch, the per-package
// compat flag, and the device profile read once at startup.
package deviceconfig

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Keys in the package-manager device-config namespace.
const (
	// FilteringEnabledKey is the master switch for query filtering.
	FilteringEnabledKey = "package_query_filtering_enabled"

	// FilterApplicationQueryChange is the per-package compat change id:
	// packages with the change disabled are exempt from filtering.
	FilterApplicationQueryChange = "FILTER_APPLICATION_QUERY"
)

// FilteringEnabledDefault is the default of the master switch.
const FilteringEnabledDefault = true

// Source provides dynamic boolean properties with change notification.
type Source interface {
	GetBool(key string, def bool) bool
	// OnChange registers fn to run whenever the key's value may have
	// changed.
	OnChange(key string, fn func())
}

// Compat exposes the compatibility framework's per-package change state.
type Compat interface {
	// IsChangeEnabled reports whether the change applies to the package.
	IsChangeEnabled(change string, packageName string) bool
	// RegisterListener subscribes to per-package flips of the change.
	RegisterListener(change string, fn func(packageName string))
}

// StaticSource is a map-backed Source. Setting a key notifies listeners;
// useful as the default on devices without a remote config channel and in
// tests.
type StaticSource struct {
	mu        sync.Mutex
	values    map[string]bool
	listeners map[string][]func()
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		values:    make(map[string]bool),
		listeners: make(map[string][]func()),
	}
}

func (s *StaticSource) GetBool(key string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *StaticSource) OnChange(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[key] = append(s.listeners[key], fn)
}

// Set stores a value and fires the key's listeners.
func (s *StaticSource) Set(key string, value bool) {
	s.mu.Lock()
	s.values[key] = value
	fns := append([]func(){}, s.listeners[key]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// StaticCompat is a map-backed Compat for devices without a compat framework
// connection and for tests. Changes default to enabled.
type StaticCompat struct {
	mu        sync.Mutex
	disabled  map[string]map[string]struct{} // change -> package names
	listeners map[string][]func(string)
}

func NewStaticCompat() *StaticCompat {
	return &StaticCompat{
		disabled:  make(map[string]map[string]struct{}),
		listeners: make(map[string][]func(string)),
	}
}

func (c *StaticCompat) IsChangeEnabled(change, packageName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pkgs, ok := c.disabled[change]
	if !ok {
		return true
	}
	_, off := pkgs[packageName]
	return !off
}

func (c *StaticCompat) RegisterListener(change string, fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[change] = append(c.listeners[change], fn)
}

// SetChangeEnabled flips the change for one package and notifies listeners.
func (c *StaticCompat) SetChangeEnabled(change, packageName string, enabled bool) {
	c.mu.Lock()
	pkgs, ok := c.disabled[change]
	if !ok {
		pkgs = make(map[string]struct{})
		c.disabled[change] = pkgs
	}
	if enabled {
		delete(pkgs, packageName)
	} else {
		pkgs[packageName] = struct{}{}
	}
	fns := append([]func(string){}, c.listeners[change]...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(packageName)
	}
}

// Profile is the static device profile, read once at startup.
type Profile struct {
	// ForceQueryablePackages names system packages that are force-queryable
	// regardless of manifest content; non-system packages on the list are
	// not promoted.
	ForceQueryablePackages []string `yaml:"force_queryable_packages"`

	// SystemAppsQueryable makes every system app queryable by default. When
	// set, the force-queryable package list is redundant and ignored.
	SystemAppsQueryable bool `yaml:"system_apps_queryable"`

	// PlatformEquivalentFingerprints are signing identities honored for
	// manifest force-queryable declarations.
	PlatformEquivalentFingerprints []string `yaml:"platform_equivalent_fingerprints"`
}

// LoadProfile reads the device profile from a YAML file. An empty path
// yields the zero profile; a path that cannot be read is an error.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("LoadProfile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("LoadProfile: %w", err)
	}
	if p.SystemAppsQueryable {
		p.ForceQueryablePackages = nil
	}
	return p, nil
}
