package filter

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

// DumpQueries writes a textual diagnostic of the visibility index: the
// master-switch state, the force-queryable set, and per-caller target lists
// for each relation map. With filteringAppID set, output is restricted to
// rows and entries touching that identity. expand renders an app identity
// for display; pass nil to print raw numbers.
func (f *Filter) DumpQueries(w io.Writer, filteringAppID *pkginfo.AppID,
	users []pkginfo.UserID, expand func(pkginfo.AppID) string) {
	if expand == nil {
		expand = func(appID pkginfo.AppID) string { return strconv.Itoa(int(appID)) }
	}
	f.state.RunWithState(func(map[string]*pkginfo.Setting, []pkginfo.User) {
		fmt.Fprintln(w, "Queries:")
		if !f.featureConfig.IsGloballyEnabled() {
			fmt.Fprintln(w, "  DISABLED")
			if !debugLogging {
				return
			}
		}
		fmt.Fprintf(w, "  system apps queryable: %v\n", f.systemAppsQueryable)

		dumpAppIDSet(w, filteringAppID, f.forceQueryable, "forceQueryable", "  ", expand)

		fmt.Fprintln(w, "  queries via package name:")
		dumpAppIDMap(w, filteringAppID, f.queriesViaPackage, "    ", expand)
		fmt.Fprintln(w, "  queries via intent:")
		dumpAppIDMap(w, filteringAppID, f.queriesViaComponent, "    ", expand)

		fmt.Fprintln(w, "  queryable via interaction:")
		for _, user := range users {
			fmt.Fprintf(w, "    User %d:\n", user)
			var filteringUID *pkginfo.UID
			if filteringAppID != nil {
				uid := pkginfo.UIDOf(user, *filteringAppID)
				filteringUID = &uid
			}
			dumpUIDMap(w, filteringUID, f.implicitlyQueryable, "      ", expand)
		}
	})
}

func dumpAppIDSet(w io.Writer, filteringAppID *pkginfo.AppID, s set[pkginfo.AppID],
	title, spacing string, expand func(pkginfo.AppID) string) {
	if len(s) == 0 {
		return
	}
	if filteringAppID != nil && !s.contains(*filteringAppID) {
		return
	}
	fmt.Fprintf(w, "%s%s:\n", spacing, title)
	for _, appID := range sortedInts(s) {
		if filteringAppID != nil && appID != *filteringAppID {
			continue
		}
		fmt.Fprintf(w, "%s  %s\n", spacing, expand(appID))
	}
}

func dumpAppIDMap(w io.Writer, filteringAppID *pkginfo.AppID,
	m setMap[pkginfo.AppID, pkginfo.AppID], spacing string, expand func(pkginfo.AppID) string) {
	for _, caller := range sortedKeys(m) {
		row := m[caller]
		// a row keyed by the filtering identity prints all of its targets
		rowFilter := filteringAppID
		if filteringAppID != nil && caller == *filteringAppID {
			rowFilter = nil
		}
		if rowFilter != nil && !row.contains(*rowFilter) {
			continue
		}
		fmt.Fprintf(w, "%s%s:\n", spacing, expand(caller))
		for _, target := range sortedInts(row) {
			if rowFilter != nil && target != *rowFilter {
				continue
			}
			fmt.Fprintf(w, "%s  %s\n", spacing, expand(target))
		}
	}
}

func dumpUIDMap(w io.Writer, filteringUID *pkginfo.UID,
	m setMap[pkginfo.UID, pkginfo.UID], spacing string, expand func(pkginfo.AppID) string) {
	for _, caller := range sortedKeys(m) {
		row := m[caller]
		rowFilter := filteringUID
		if filteringUID != nil && caller == *filteringUID {
			rowFilter = nil
		}
		if rowFilter != nil && !row.contains(*rowFilter) {
			continue
		}
		fmt.Fprintf(w, "%s%s (user %d):\n", spacing, expand(caller.App()), caller.User())
		for _, target := range sortedInts(row) {
			if rowFilter != nil && target != *rowFilter {
				continue
			}
			fmt.Fprintf(w, "%s  %s (user %d)\n", spacing, expand(target.App()), target.User())
		}
	}
}

func sortedKeys[K ~int, V comparable](m setMap[K, V]) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
