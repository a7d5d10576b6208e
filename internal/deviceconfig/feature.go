package deviceconfig

import (
	"sync"

	"github.com/meridian-os/appscope/internal/filter"
	"github.com/meridian-os/appscope/internal/pkginfo"
	"go.uber.org/zap"
)

// FeatureFlags implements filter.FeatureConfig on top of a dynamic property
// Source and the compat framework. The master switch is read at system-ready
// and tracked thereafter; per-package disablement follows the
// FILTER_APPLICATION_QUERY compat change.
type FeatureFlags struct {
	source Source
	compat Compat
	logger *zap.Logger

	mu               sync.Mutex
	featureEnabled   bool
	disabledPackages map[string]struct{}
	loggingEnabled   map[pkginfo.AppID]struct{}

	// filter is bound after construction; the compat listener recomputes its
	// cache rows.
	filter *filter.Filter

	// lookup resolves a package name to its current setting, used by the
	// compat listener.
	lookup func(packageName string) *pkginfo.Setting
}

var _ filter.FeatureConfig = (*FeatureFlags)(nil)

// NewFeatureFlags creates the flags. Bind the filter with SetFilter before
// OnSystemReady.
func NewFeatureFlags(source Source, compat Compat, lookup func(string) *pkginfo.Setting, logger *zap.Logger) *FeatureFlags {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureFlags{
		source:           source,
		compat:           compat,
		logger:           logger,
		featureEnabled:   FilteringEnabledDefault,
		disabledPackages: make(map[string]struct{}),
		loggingEnabled:   make(map[pkginfo.AppID]struct{}),
		lookup:           lookup,
	}
}

// SetFilter binds the filter whose cache the compat listener maintains.
func (ff *FeatureFlags) SetFilter(f *filter.Filter) {
	ff.filter = f
}

// OnSystemReady reads the master switch, subscribes to its changes, and
// registers the compat listener.
func (ff *FeatureFlags) OnSystemReady() {
	ff.mu.Lock()
	ff.featureEnabled = ff.source.GetBool(FilteringEnabledKey, FilteringEnabledDefault)
	ff.mu.Unlock()

	ff.source.OnChange(FilteringEnabledKey, func() {
		enabled := ff.source.GetBool(FilteringEnabledKey, FilteringEnabledDefault)
		ff.mu.Lock()
		ff.featureEnabled = enabled
		ff.mu.Unlock()
		ff.logger.Info("query filtering master switch changed", zap.Bool("enabled", enabled))
	})
	ff.compat.RegisterListener(FilterApplicationQueryChange, ff.onCompatChange)
}

func (ff *FeatureFlags) IsGloballyEnabled() bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.featureEnabled
}

func (ff *FeatureFlags) PackageIsEnabled(pkg *pkginfo.Package) bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	_, disabled := ff.disabledPackages[pkg.Name]
	return !disabled
}

func (ff *FeatureFlags) IsLoggingEnabled(appID pkginfo.AppID) bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	_, ok := ff.loggingEnabled[appID]
	return ok
}

func (ff *FeatureFlags) EnableLogging(appID pkginfo.AppID, enable bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if enable {
		ff.loggingEnabled[appID] = struct{}{}
	} else {
		delete(ff.loggingEnabled, appID)
	}
}

// onCompatChange re-evaluates a package's enablement and recomputes the
// cache rows touching it.
func (ff *FeatureFlags) onCompatChange(packageName string) {
	setting := ff.lookup(packageName)
	if setting == nil || setting.Pkg == nil {
		return
	}
	ff.updateEnabledState(setting.Pkg)
	if ff.filter != nil {
		ff.filter.UpdateCacheForPackage(packageName)
	}
}

func (ff *FeatureFlags) updateEnabledState(pkg *pkginfo.Package) {
	enabled := ff.compat.IsChangeEnabled(FilterApplicationQueryChange, pkg.Name)
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if enabled {
		delete(ff.disabledPackages, pkg.Name)
	} else {
		ff.disabledPackages[pkg.Name] = struct{}{}
	}
}

// UpdatePackageState primes logging and enablement for an added or removed
// package. Debuggable and test-only packages get blocked-verdict logging
// turned on automatically.
func (ff *FeatureFlags) UpdatePackageState(setting *pkginfo.Setting, removed bool) {
	enableLogging := setting.Pkg != nil && !removed &&
		(setting.Pkg.TestOnly || setting.Pkg.Debuggable)
	ff.EnableLogging(setting.AppID, enableLogging)
	if removed {
		ff.mu.Lock()
		delete(ff.disabledPackages, setting.Name)
		ff.mu.Unlock()
	} else if setting.Pkg != nil {
		ff.updateEnabledState(setting.Pkg)
	}
}
