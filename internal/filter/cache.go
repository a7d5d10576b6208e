package filter

import "github.com/meridian-os/appscope/internal/pkginfo"

// uidCache is the materialized decision cache: caller UID -> target UID ->
// filtered. Both levels are sparse; the UID encoding leaves holes, so dense
// arrays are a poor fit.
type uidCache map[pkginfo.UID]map[pkginfo.UID]bool

func newUIDCache(sizeHint int) uidCache {
	return make(uidCache, sizeHint)
}

// put records the verdict for a caller/target pair, creating the caller's row
// if needed.
func (c uidCache) put(caller, target pkginfo.UID, filtered bool) {
	row, ok := c[caller]
	if !ok {
		row = make(map[pkginfo.UID]bool)
		c[caller] = row
	}
	row[target] = filtered
}

// lookup returns the cached verdict. ok is false when either the caller row
// or the inner entry is absent.
func (c uidCache) lookup(caller, target pkginfo.UID) (filtered, rowPresent, ok bool) {
	row, rowOK := c[caller]
	if !rowOK {
		return false, false, false
	}
	v, entryOK := row[target]
	if !entryOK {
		return false, true, false
	}
	return v, true, true
}

// removeApp deletes every row keyed by a UID with the given app identity and
// every inner entry targeting it.
func (c uidCache) removeApp(appID pkginfo.AppID) {
	for caller, row := range c {
		if caller.App() == appID {
			delete(c, caller)
			continue
		}
		for target := range row {
			if target.App() == appID {
				delete(row, target)
			}
		}
	}
}
