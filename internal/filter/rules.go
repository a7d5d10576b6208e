package filter

import (
	"strings"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

// canQueryViaComponents reports whether the querying package's <queries>
// intents or provider authorities resolve against any exported component of
// the potential target. Receiver matches are suppressed when the matched
// action is a protected broadcast.
func canQueryViaComponents(querying, potentialTarget *pkginfo.Package, protected set[string]) bool {
	for _, intent := range querying.QueriesIntents {
		if matchesPackage(intent, potentialTarget, protected) {
			return true
		}
	}
	if len(querying.QueriesProviders) > 0 && matchesProviders(querying.QueriesProviders, potentialTarget) {
		return true
	}
	return false
}

func canQueryViaPackage(querying, potentialTarget *pkginfo.Package) bool {
	for _, name := range querying.QueriesPackages {
		if name == potentialTarget.Name {
			return true
		}
	}
	return false
}

// canQueryAsInstaller reports whether the querying package installed the
// target. The installer sees the installee; the reverse does not follow.
func canQueryAsInstaller(querying, potentialTarget *pkginfo.Setting) bool {
	src := potentialTarget.InstallSource
	if src.InstallerPackageName != "" && src.InstallerPackageName == querying.Name {
		return true
	}
	if !src.InitiatingPackageUninstalled && src.InitiatingPackageName != "" &&
		src.InitiatingPackageName == querying.Name {
		return true
	}
	return false
}

func matchesProviders(queriesAuthorities []string, potentialTarget *pkginfo.Package) bool {
	for _, provider := range potentialTarget.Providers {
		if !provider.Exported || provider.Authority == "" {
			continue
		}
		for _, authority := range strings.Split(provider.Authority, ";") {
			for _, wanted := range queriesAuthorities {
				if authority == wanted {
					return true
				}
			}
		}
	}
	return false
}

// matchesPackage resolves one query intent against all exported components of
// the target. Only receiver filters consult the protected-broadcast set.
func matchesPackage(intent pkginfo.Intent, potentialTarget *pkginfo.Package, protected set[string]) bool {
	if matchesAnyComponent(intent, potentialTarget.Services, nil) {
		return true
	}
	if matchesAnyComponent(intent, potentialTarget.Activities, nil) {
		return true
	}
	if matchesAnyComponent(intent, potentialTarget.Receivers, protected) {
		return true
	}
	for _, provider := range potentialTarget.Providers {
		if provider.Exported && matchesAnyFilter(intent, provider.Component, nil) {
			return true
		}
	}
	return false
}

func matchesAnyComponent(intent pkginfo.Intent, components []pkginfo.Component, protected set[string]) bool {
	for _, component := range components {
		if !component.Exported {
			continue
		}
		if matchesAnyFilter(intent, component, protected) {
			return true
		}
	}
	return false
}

func matchesAnyFilter(intent pkginfo.Intent, component pkginfo.Component, protected set[string]) bool {
	var isProtected func(string) bool
	if protected != nil {
		isProtected = protected.contains
	}
	for _, filter := range component.Filters {
		if filter.Match(intent, isProtected) {
			return true
		}
	}
	return false
}

// pkgInstruments reports whether source declares instrumentation targeting
// target.
func pkgInstruments(source, target *pkginfo.Package) bool {
	for _, inst := range source.Instrumentations {
		if inst.TargetPackage == target.Name {
			return true
		}
	}
	return false
}

// requestsQueryAllPackages inspects the package directly since permissions
// may not be analyzed yet at package-add time.
func requestsQueryAllPackages(pkg *pkginfo.Package) bool {
	for _, perm := range pkg.RequestedPermissions {
		if perm == pkginfo.QueryAllPackagesPermission {
			return true
		}
	}
	return false
}

// isPlatformSigned reports whether the setting is a system package signed
// exactly with the platform identity.
func isPlatformSigned(platformSigning pkginfo.SigningDetails, setting *pkginfo.Setting) bool {
	return setting.System && setting.Signing.MatchesExactly(platformSigning)
}
