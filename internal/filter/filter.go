// Package filter decides, for every pair of installed applications, whether
// one may observe the other. Applications are mutually invisible by default;
// visibility exists only when a declared or runtime relation establishes it.
package filter

import (
	"sync"

	"github.com/meridian-os/appscope/internal/overlay"
	"github.com/meridian-os/appscope/internal/pkginfo"
	"go.uber.org/zap"
)

const (
	// debugAllowAll logs blocked verdicts instead of enforcing them.
	debugAllowAll = false
	debugLogging  = false
)

// Filter is the in-memory visibility index and its query engine. The relation
// maps are guarded by the package-manager lock (every mutation runs inside
// StateProvider.RunWithState); the decision cache is guarded by cacheMu. The
// two locks are only ever taken in the order package-manager lock -> cacheMu.
type Filter struct {
	// implicitlyQueryable holds runtime grants: the key UID interacted with
	// each value UID and may now see it. User-scoped, unlike the other maps.
	implicitlyQueryable setMap[pkginfo.UID, pkginfo.UID]

	// queriesViaPackage maps a caller app identity to the app identities it
	// may see by naming them: <queries> package entries, installer
	// relationships, and instrumentation.
	queriesViaPackage setMap[pkginfo.AppID, pkginfo.AppID]

	// queriesViaComponent maps a caller app identity to the app identities
	// whose exported components match one of the caller's query intents.
	queriesViaComponent setMap[pkginfo.AppID, pkginfo.AppID]

	// componentRecomputeRequired is set when a package install grows the
	// protected-broadcast set, invalidating prior component edges. The next
	// component read drains it with a full recompute.
	componentRecomputeRequired bool

	// forceQueryable identities are visible to every caller regardless of
	// manifest content.
	forceQueryable set[pkginfo.AppID]

	forceQueryableByDevice []string
	systemAppsQueryable    bool

	// platformEquivalentFingerprints are signing identities the device
	// recognizes as equivalent to the platform for manifest force-queryable
	// declarations.
	platformEquivalentFingerprints []string

	protectedBroadcasts set[string]

	// platformSigning becomes known when the platform package is added.
	platformSigning *pkginfo.SigningDetails

	featureConfig FeatureConfig
	overlayMapper *overlay.ReferenceMapper
	state         StateProvider
	background    Executor
	logger        *zap.Logger

	cacheMu sync.Mutex
	// cache is nil until OnSystemReady triggers the first build. Once
	// present it holds a verdict for every installed pair across every user.
	cache uidCache
}

// Config carries the construction-time inputs of the filter.
type Config struct {
	StateProvider StateProvider
	FeatureConfig FeatureConfig

	// ForceQueryablePackages is the device's list of package names whose
	// system packages are force-queryable regardless of manifest content. A
	// non-system package on the list gains nothing from it.
	ForceQueryablePackages []string

	// SystemAppsQueryable makes every system app queryable by default.
	SystemAppsQueryable bool

	// PlatformEquivalentFingerprints lists signing identities honored for
	// manifest force-queryable declarations.
	PlatformEquivalentFingerprints []string

	OverlayMapper *overlay.ReferenceMapper
	Background    Executor
	Logger        *zap.Logger
}

// New creates a Filter. The overlay mapper defers its rebuild until
// OnSystemReady when none is supplied.
func New(cfg Config) *Filter {
	mapper := cfg.OverlayMapper
	if mapper == nil {
		mapper = overlay.NewReferenceMapper(true)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		implicitlyQueryable:            make(setMap[pkginfo.UID, pkginfo.UID]),
		queriesViaPackage:              make(setMap[pkginfo.AppID, pkginfo.AppID]),
		queriesViaComponent:            make(setMap[pkginfo.AppID, pkginfo.AppID]),
		forceQueryable:                 make(set[pkginfo.AppID]),
		forceQueryableByDevice:         cfg.ForceQueryablePackages,
		systemAppsQueryable:            cfg.SystemAppsQueryable,
		platformEquivalentFingerprints: cfg.PlatformEquivalentFingerprints,
		protectedBroadcasts:            make(set[string]),
		featureConfig:                  cfg.FeatureConfig,
		overlayMapper:                  mapper,
		state:                          cfg.StateProvider,
		background:                     cfg.Background,
		logger:                         logger,
	}
}

// OverlayMapper exposes the overlay collaborator for wiring.
func (f *Filter) OverlayMapper() *overlay.ReferenceMapper {
	return f.overlayMapper
}

// FeatureConfig exposes the feature-config collaborator.
func (f *Filter) FeatureConfig() FeatureConfig {
	return f.featureConfig
}

// GrantImplicitAccess records that recipient interacted with visible and may
// now see it, updating the decision cache cell directly. No-op when the UIDs
// are equal. The effect is observable as soon as the call returns.
func (f *Filter) GrantImplicitAccess(recipient, visible pkginfo.UID) {
	if recipient == visible {
		return
	}
	added := false
	f.state.RunWithState(func(map[string]*pkginfo.Setting, []pkginfo.User) {
		added = f.implicitlyQueryable.add(recipient, visible)
	})
	if added && debugLogging {
		f.logger.Debug("implicit access granted",
			zap.Int("recipient_uid", int(recipient)),
			zap.Int("visible_uid", int(visible)),
		)
	}
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	if f.cache != nil {
		f.cache.put(recipient, visible, false)
	}
}

// OnSystemReady finalizes deferred collaborators and kicks off the initial
// cache build on the background executor.
func (f *Filter) OnSystemReady() {
	f.overlayMapper.RebuildIfDeferred()
	f.featureConfig.OnSystemReady()
	f.updateEntireCacheAsync()
}

// AddPackage adds a package to the visibility index. With isReplace set, any
// prior rules for the package are removed first, within the same state
// snapshot discipline.
func (f *Filter) AddPackage(newSetting *pkginfo.Setting, isReplace bool) {
	if isReplace {
		f.RemovePackage(newSetting)
	}
	f.state.RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User) {
		f.addPackageInternal(newSetting, settings)
		f.cacheMu.Lock()
		defer f.cacheMu.Unlock()
		if f.cache != nil {
			f.updateCacheForPackageLocked(f.cache, "", newSetting, settings, users)
		}
		// else the entire cache is built when the system becomes ready
	})
}

func (f *Filter) addPackageInternal(newSetting *pkginfo.Setting, settings map[string]*pkginfo.Setting) {
	if newSetting.Name == pkginfo.PlatformPackageName {
		// Set aside the platform signing identity, and revisit packages
		// added before the platform for retroactive promotion.
		signing := newSetting.Signing
		f.platformSigning = &signing
		for _, setting := range settings {
			if isPlatformSigned(signing, setting) {
				f.forceQueryable.add(setting.AppID)
			}
		}
	}

	newPkg := newSetting.Pkg
	if newPkg == nil {
		return
	}

	for _, action := range newPkg.ProtectedBroadcasts {
		if f.protectedBroadcasts.add(action) {
			f.componentRecomputeRequired = true
		}
	}

	newIsForceQueryable := f.forceQueryable.contains(newSetting.AppID) || // shared user already promoted
		newSetting.ForceQueryableOverride ||
		(newPkg.ForceQueryable && f.isPlatformEquivalentSigned(newSetting)) ||
		(newSetting.System && (f.systemAppsQueryable ||
			newPkg.ForceQueryable ||
			containsString(f.forceQueryableByDevice, newPkg.Name)))
	if newIsForceQueryable ||
		(f.platformSigning != nil && isPlatformSigned(*f.platformSigning, newSetting)) {
		f.forceQueryable.add(newSetting.AppID)
	}

	for _, existing := range settings {
		if existing.AppID == newSetting.AppID || existing.Pkg == nil {
			continue
		}
		existingPkg := existing.Pkg
		// ability of the already-added package to see the new one
		if !newIsForceQueryable {
			if !f.componentRecomputeRequired && canQueryViaComponents(existingPkg, newPkg, f.protectedBroadcasts) {
				f.queriesViaComponent.add(existing.AppID, newSetting.AppID)
			}
			if canQueryViaPackage(existingPkg, newPkg) || canQueryAsInstaller(existing, newSetting) {
				f.queriesViaPackage.add(existing.AppID, newSetting.AppID)
			}
		}
		// ability of the new package to see the existing one
		if !f.forceQueryable.contains(existing.AppID) {
			if !f.componentRecomputeRequired && canQueryViaComponents(newPkg, existingPkg, f.protectedBroadcasts) {
				f.queriesViaComponent.add(newSetting.AppID, existing.AppID)
			}
			if canQueryViaPackage(newPkg, existingPkg) || canQueryAsInstaller(newSetting, existing) {
				f.queriesViaPackage.add(newSetting.AppID, existing.AppID)
			}
		}
		// instrumentation in either direction makes both visible to each other
		if pkgInstruments(newPkg, existingPkg) || pkgInstruments(existingPkg, newPkg) {
			f.queriesViaPackage.add(newSetting.AppID, existing.AppID)
			f.queriesViaPackage.add(existing.AppID, newSetting.AppID)
		}
	}

	f.overlayMapper.AddPkg(newPkg)
	f.featureConfig.UpdatePackageState(newSetting, false)
}

func (f *Filter) isPlatformEquivalentSigned(setting *pkginfo.Setting) bool {
	for _, fp := range f.platformEquivalentFingerprints {
		if setting.Signing.Contains(fp) {
			return true
		}
	}
	return false
}

// RemovePackage removes a package from the visibility index. Surviving
// shared-user siblings are re-added to restore the symmetric edges the
// departing member carried, and their cache rows are recomputed.
func (f *Filter) RemovePackage(setting *pkginfo.Setting) {
	f.state.RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User) {
		for _, user := range users {
			removingUID := pkginfo.UIDOf(user.ID, setting.AppID)
			f.implicitlyQueryable.removeKey(removingUID)
			f.implicitlyQueryable.removeValue(removingUID)
		}

		if !f.componentRecomputeRequired {
			f.queriesViaComponent.removeKey(setting.AppID)
			f.queriesViaComponent.removeValue(setting.AppID)
		}
		f.queriesViaPackage.removeKey(setting.AppID)
		f.queriesViaPackage.removeValue(setting.AppID)

		f.forceQueryable.remove(setting.AppID)

		if setting.Pkg != nil && len(setting.Pkg.ProtectedBroadcasts) > 0 {
			prior := f.protectedBroadcasts
			f.protectedBroadcasts = collectProtectedBroadcasts(settings, setting.Pkg.Name)
			for action := range prior {
				if !f.protectedBroadcasts.contains(action) {
					// Edges may be wrongly absent: a receiver match was
					// suppressed by a protection that no longer exists.
					f.componentRecomputeRequired = true
					break
				}
			}
		}

		f.overlayMapper.RemovePkg(setting.Name)
		f.featureConfig.UpdatePackageState(setting, true)

		// Re-add surviving shared-user members after all removals so edges
		// between them and other packages are re-established.
		if setting.SharedUser != nil {
			for _, sibling := range setting.SharedUser.Packages {
				if sibling == setting {
					continue
				}
				f.addPackageInternal(sibling, settings)
			}
		}

		f.cacheMu.Lock()
		defer f.cacheMu.Unlock()
		if f.cache == nil {
			return
		}
		f.cache.removeApp(setting.AppID)
		if setting.SharedUser != nil {
			for _, sibling := range setting.SharedUser.Packages {
				if sibling == setting {
					continue
				}
				f.updateCacheForPackageLocked(f.cache, setting.Name, sibling, settings, users)
			}
		}
	})
}

func collectProtectedBroadcasts(settings map[string]*pkginfo.Setting, excludePackage string) set[string] {
	out := make(set[string])
	for _, setting := range settings {
		if setting.Pkg == nil || setting.Pkg.Name == excludePackage {
			continue
		}
		for _, action := range setting.Pkg.ProtectedBroadcasts {
			out.add(action)
		}
	}
	return out
}

// recomputeComponentVisibility rebuilds every component edge from scratch and
// clears the recompute sentinel. Callers hold the package-manager lock.
func (f *Filter) recomputeComponentVisibility(settings map[string]*pkginfo.Setting) {
	f.queriesViaComponent.clear()
	for _, setting := range settings {
		if setting.Pkg == nil || requestsQueryAllPackages(setting.Pkg) {
			continue
		}
		for _, other := range settings {
			if other == setting || other.Pkg == nil || f.forceQueryable.contains(other.AppID) {
				continue
			}
			if canQueryViaComponents(setting.Pkg, other.Pkg, f.protectedBroadcasts) {
				f.queriesViaComponent.add(setting.AppID, other.AppID)
			}
		}
	}
	f.componentRecomputeRequired = false
}

// OnUsersChanged rebuilds the entire cache when one exists; user arrival or
// departure changes the UID set the cache is keyed by.
func (f *Filter) OnUsersChanged() {
	f.cacheMu.Lock()
	present := f.cache != nil
	f.cacheMu.Unlock()
	if present {
		f.updateEntireCache()
	}
}

// UpdateCacheForPackage recomputes every cache row touching the named
// package, e.g. after its compat flag flipped.
func (f *Filter) UpdateCacheForPackage(packageName string) {
	f.cacheMu.Lock()
	present := f.cache != nil
	f.cacheMu.Unlock()
	if !present {
		return
	}
	f.state.RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User) {
		subject, ok := settings[packageName]
		if !ok {
			return
		}
		f.cacheMu.Lock()
		defer f.cacheMu.Unlock()
		if f.cache != nil {
			f.updateCacheForPackageLocked(f.cache, "", subject, settings, users)
		}
	})
}

// updateCacheForPackageLocked fills the subject's rows against every other
// package, in both directions, for every user pair. Callers hold both the
// package-manager lock and cacheMu (or own the cache exclusively during a
// rebuild).
func (f *Filter) updateCacheForPackageLocked(cache uidCache, skipPackage string,
	subject *pkginfo.Setting, settings map[string]*pkginfo.Setting, users []pkginfo.User) {
	for _, other := range settings {
		if subject.AppID == other.AppID {
			continue
		}
		if (skipPackage != "" && subject.Name == skipPackage) || other.Name == skipPackage {
			continue
		}
		for _, subjectUser := range users {
			for _, otherUser := range users {
				subjectUID := pkginfo.UIDOf(subjectUser.ID, subject.AppID)
				otherUID := pkginfo.UIDOf(otherUser.ID, other.AppID)
				cache.put(subjectUID, otherUID,
					f.shouldFilterInternal(subjectUID, subject, other, otherUser.ID, settings))
				cache.put(otherUID, subjectUID,
					f.shouldFilterInternal(otherUID, other, subject, subjectUser.ID, settings))
			}
		}
	}
}

func (f *Filter) updateEntireCache() {
	f.state.RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User) {
		cache := f.buildEntireCache(settings, users)
		f.cacheMu.Lock()
		f.cache = cache
		f.cacheMu.Unlock()
	})
}

func (f *Filter) buildEntireCache(settings map[string]*pkginfo.Setting, users []pkginfo.User) uidCache {
	cache := newUIDCache(len(users) * len(settings))
	for _, setting := range settings {
		f.updateCacheForPackageLocked(cache, "", setting, settings, users)
	}
	return cache
}

// updateEntireCacheAsync builds the cache off the critical path: snapshot the
// package table under the lock, compute without it, then verify nothing moved
// before publishing. On invalidation it rebuilds synchronously once.
func (f *Filter) updateEntireCacheAsync() {
	f.background.Execute(func() {
		settingsCopy := make(map[string]*pkginfo.Setting)
		packagesCopy := make(map[string]*pkginfo.Package)
		var usersCopy []pkginfo.User
		f.state.RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User) {
			for name, setting := range settings {
				settingsCopy[name] = setting
				// Package references are stable across mutations; an install
				// or replace swaps the pointer, which the verification pass
				// detects.
				packagesCopy[name] = setting.Pkg
			}
			usersCopy = append(usersCopy, users...)
			// Drain the recompute sentinel here, under the lock, so the
			// unlocked build below does not rebuild the component map.
			if f.componentRecomputeRequired {
				f.recomputeComponentVisibility(settings)
			}
		})

		cache := f.buildEntireCache(settingsCopy, usersCopy)

		changed := false
		f.state.RunWithState(func(settings map[string]*pkginfo.Setting, _ []pkginfo.User) {
			if len(settings) != len(settingsCopy) {
				changed = true
				return
			}
			for name, setting := range settings {
				if pkg, ok := packagesCopy[name]; !ok || pkg != setting.Pkg {
					changed = true
					return
				}
			}
		})
		if changed {
			f.logger.Info("package table changed during cache build, rebuilding under lock")
			f.updateEntireCache()
			return
		}
		f.cacheMu.Lock()
		f.cache = cache
		f.cacheMu.Unlock()
	})
}

// ShouldFilter returns true when the caller must not see the target.
//
// The caller must not hold any lock that is ordered after the
// package-manager lock: before the system is ready the uncached path
// acquires it.
func (f *Filter) ShouldFilter(callingUID pkginfo.UID, callingSetting *pkginfo.Setting,
	targetSetting *pkginfo.Setting, userID pkginfo.UserID) bool {
	callingAppID := callingUID.App()
	if callingAppID < pkginfo.FirstAppID ||
		targetSetting.AppID < pkginfo.FirstAppID ||
		callingAppID == targetSetting.AppID {
		return false
	}

	filtered, decided := f.lookupCache(callingUID, targetSetting, userID)
	if !decided {
		f.state.RunWithState(func(settings map[string]*pkginfo.Setting, _ []pkginfo.User) {
			filtered = f.shouldFilterInternal(callingUID, callingSetting, targetSetting, userID, settings)
		})
	}
	if !filtered {
		return false
	}

	if debugLogging || f.featureConfig.IsLoggingEnabled(callingAppID) {
		f.logInteraction(callingSetting, targetSetting, "BLOCKED")
	}
	return !debugAllowAll
}

// ShouldFilterWithState is ShouldFilter for callers already inside
// RunWithState; it never re-acquires the package-manager lock.
func (f *Filter) ShouldFilterWithState(callingUID pkginfo.UID, callingSetting *pkginfo.Setting,
	targetSetting *pkginfo.Setting, userID pkginfo.UserID,
	settings map[string]*pkginfo.Setting) bool {
	callingAppID := callingUID.App()
	if callingAppID < pkginfo.FirstAppID ||
		targetSetting.AppID < pkginfo.FirstAppID ||
		callingAppID == targetSetting.AppID {
		return false
	}
	filtered, decided := f.lookupCache(callingUID, targetSetting, userID)
	if !decided {
		filtered = f.shouldFilterInternal(callingUID, callingSetting, targetSetting, userID, settings)
	}
	if !filtered {
		return false
	}
	if debugLogging || f.featureConfig.IsLoggingEnabled(callingAppID) {
		f.logInteraction(callingSetting, targetSetting, "BLOCKED")
	}
	return !debugAllowAll
}

// lookupCache resolves the pair from the decision cache. decided is false
// when no cache exists yet. A present cache with a missing row or entry is a
// hard miss: the caller is unknown to the system and gets filtered.
func (f *Filter) lookupCache(callingUID pkginfo.UID, targetSetting *pkginfo.Setting,
	userID pkginfo.UserID) (filtered, decided bool) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	if f.cache == nil {
		return false, false
	}
	targetUID := pkginfo.UIDOf(userID, targetSetting.AppID)
	v, rowPresent, ok := f.cache.lookup(callingUID, targetUID)
	if !rowPresent {
		f.logger.Error("encountered calling uid with no cached rules",
			zap.Int("calling_uid", int(callingUID)),
			zap.Bool("wtf", true),
		)
		return true, true
	}
	if !ok {
		f.logger.Warn("encountered calling -> target with no cached rules",
			zap.Int("calling_uid", int(callingUID)),
			zap.Int("target_uid", int(targetUID)),
		)
		return true, true
	}
	return v, true
}

// shouldFilterInternal is the exhaustive uncached decision. Callers hold the
// package-manager lock; settings is the current package table.
func (f *Filter) shouldFilterInternal(callingUID pkginfo.UID, callingSetting *pkginfo.Setting,
	targetSetting *pkginfo.Setting, targetUserID pkginfo.UserID,
	settings map[string]*pkginfo.Setting) bool {
	if !f.featureConfig.IsGloballyEnabled() {
		if debugLogging {
			f.logger.Debug("filtering disabled; skipped")
		}
		return false
	}
	if callingSetting == nil {
		f.logger.Error("no setting found for non-system uid",
			zap.Int("calling_uid", int(callingUID)),
			zap.Bool("wtf", true),
		)
		return true
	}

	callingPkgs := identityPackages(callingSetting)
	if allDisabled(f.featureConfig, callingPkgs) {
		if debugLogging {
			f.logInteraction(callingSetting, targetSetting, "DISABLED")
		}
		return false
	}

	// Not technically installed right now; treat as filtered until the
	// package is available again.
	targetPkg := targetSetting.Pkg
	if targetPkg == nil {
		if debugLogging {
			f.logger.Debug("target package is nil; filtered")
		}
		return true
	}
	if targetPkg.StaticSharedLibrary {
		// not an app, this filtering takes place at a higher level
		return false
	}

	callingAppID := callingSetting.AppID
	targetAppID := targetSetting.AppID
	if callingAppID == targetAppID {
		return false
	}

	for _, pkg := range callingPkgs {
		if requestsQueryAllPackages(pkg) {
			return false
		}
	}
	if f.forceQueryable.contains(targetAppID) {
		return false
	}
	if f.queriesViaPackage.contains(callingAppID, targetAppID) {
		return false
	}
	if f.componentRecomputeRequired {
		f.recomputeComponentVisibility(settings)
	}
	if f.queriesViaComponent.contains(callingAppID, targetAppID) {
		return false
	}

	targetUID := pkginfo.UIDOf(targetUserID, targetAppID)
	if f.implicitlyQueryable.contains(callingUID, targetUID) {
		return false
	}

	for _, name := range identityNames(callingSetting) {
		if f.overlayMapper.IsValidActor(targetPkg.Name, name) {
			return false
		}
	}

	return true
}

// identityPackages returns the manifest views of every package under the
// caller's identity: the package itself, or all shared-user members.
func identityPackages(setting *pkginfo.Setting) []*pkginfo.Package {
	if setting.SharedUser == nil {
		if setting.Pkg == nil {
			return nil
		}
		return []*pkginfo.Package{setting.Pkg}
	}
	out := make([]*pkginfo.Package, 0, len(setting.SharedUser.Packages))
	for _, member := range setting.SharedUser.Packages {
		if member.Pkg != nil {
			out = append(out, member.Pkg)
		}
	}
	return out
}

func identityNames(setting *pkginfo.Setting) []string {
	if setting.SharedUser == nil {
		return []string{setting.Name}
	}
	out := make([]string, 0, len(setting.SharedUser.Packages))
	for _, member := range setting.SharedUser.Packages {
		out = append(out, member.Name)
	}
	return out
}

// allDisabled reports whether every package under the identity has filtering
// disabled. An identity with no installed packages is not considered
// disabled.
func allDisabled(cfg FeatureConfig, pkgs []*pkginfo.Package) bool {
	if len(pkgs) == 0 {
		return false
	}
	for _, pkg := range pkgs {
		if cfg.PackageIsEnabled(pkg) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (f *Filter) logInteraction(callingSetting, targetSetting *pkginfo.Setting, description string) {
	caller := "system"
	if callingSetting != nil {
		caller = callingSetting.Name
	}
	f.logger.Info("interaction",
		zap.String("caller", caller),
		zap.String("target", targetSetting.Name),
		zap.String("description", description),
	)
}
