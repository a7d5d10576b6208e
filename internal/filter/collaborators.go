package filter

import "github.com/meridian-os/appscope/internal/pkginfo"

// StateProvider hands the filter a consistent view of the authoritative
// package table. The callback runs while the provider holds the
// package-manager lock; the filter must not retain the settings map or any
// package reference past the callback unless it also captures enough to
// detect concurrent mutation (see the async cache rebuild).
type StateProvider interface {
	RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User))
}

// StateProviderFunc adapts a function to the StateProvider interface.
type StateProviderFunc func(func(settings map[string]*pkginfo.Setting, users []pkginfo.User))

func (f StateProviderFunc) RunWithState(cb func(map[string]*pkginfo.Setting, []pkginfo.User)) {
	f(cb)
}

// FeatureConfig exposes the dynamic enablement state of query filtering.
type FeatureConfig interface {
	// OnSystemReady is called when the system is ready and dynamic
	// configuration can be read.
	OnSystemReady()

	// IsGloballyEnabled reports whether filtering applies at all.
	IsGloballyEnabled() bool

	// PackageIsEnabled reports whether filtering applies to queries made by
	// the given package.
	PackageIsEnabled(pkg *pkginfo.Package) bool

	// IsLoggingEnabled reports whether blocked verdicts should be logged for
	// callers under the given app identity.
	IsLoggingEnabled(appID pkginfo.AppID) bool

	// EnableLogging toggles blocked-verdict logging for an app identity.
	EnableLogging(appID pkginfo.AppID, enable bool)

	// UpdatePackageState primes per-package state when a package is added or
	// removed.
	UpdatePackageState(setting *pkginfo.Setting, removed bool)
}

// Executor runs short background tasks, such as building the initial
// visibility cache. Tasks submitted to one executor run serially.
type Executor interface {
	Execute(task func())
}
