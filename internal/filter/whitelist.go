package filter

import (
	"sort"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

// VisibilityWhitelist returns, per user, the sorted set of app identities
// that may currently see the target. Only identities at or above FirstAppID
// are considered; everything below can already see all applications. A nil
// result means the target is visible to all and no whitelist applies.
//
// Callers run inside RunWithState and pass the current package table.
func (f *Filter) VisibilityWhitelist(target *pkginfo.Setting, users []pkginfo.UserID,
	settings map[string]*pkginfo.Setting) map[pkginfo.UserID][]pkginfo.AppID {
	if f.forceQueryable.contains(target.AppID) {
		return nil
	}
	result := make(map[pkginfo.UserID][]pkginfo.AppID, len(users))
	for _, userID := range users {
		seen := make(set[pkginfo.AppID])
		appIDs := make([]pkginfo.AppID, 0, len(settings))
		for _, existing := range settings {
			existingAppID := existing.AppID
			if existingAppID < pkginfo.FirstAppID || seen.contains(existingAppID) {
				continue
			}
			existingUID := pkginfo.UIDOf(userID, existingAppID)
			if !f.ShouldFilterWithState(existingUID, existing, target, userID, settings) {
				seen.add(existingAppID)
				appIDs = append(appIDs, existingAppID)
			}
		}
		sort.Slice(appIDs, func(i, j int) bool { return appIDs[i] < appIDs[j] })
		result[userID] = appIDs
	}
	return result
}
