package pkginfo

// PlatformPackageName is the reserved name of the platform package. Its
// signing identity, once known, promotes matching system packages to
// force-queryable.
const PlatformPackageName = "platform"

// QueryAllPackagesPermission is the manifest permission that lets a package
// see every other package. It does not make the holder visible to others.
const QueryAllPackagesPermission = "meridian.permission.QUERY_ALL_PACKAGES"

// User describes an active user on the device.
type User struct {
	ID UserID `json:"id"`
}

// SigningDetails holds the hex digests of a package's signing certificates.
type SigningDetails struct {
	Fingerprints []string `json:"fingerprints"`
}

// MatchesExactly reports whether both identities carry exactly the same
// certificate set, order-insensitive. Rotation history is not considered.
func (s SigningDetails) MatchesExactly(other SigningDetails) bool {
	if len(s.Fingerprints) == 0 || len(s.Fingerprints) != len(other.Fingerprints) {
		return false
	}
	for _, fp := range s.Fingerprints {
		if !other.Contains(fp) {
			return false
		}
	}
	return true
}

// Contains reports whether fp is one of the signing certificate digests.
func (s SigningDetails) Contains(fp string) bool {
	for _, have := range s.Fingerprints {
		if have == fp {
			return true
		}
	}
	return false
}

// InstallSource records who installed a package.
type InstallSource struct {
	InstallerPackageName         string `json:"installer_package_name"`
	InitiatingPackageName        string `json:"initiating_package_name"`
	InitiatingPackageUninstalled bool   `json:"initiating_package_uninstalled"`
}

// Instrumentation declares that the owning package tests another package.
type Instrumentation struct {
	TargetPackage string `json:"target_package"`
}

// Component is a parsed manifest component (activity, service, or receiver).
type Component struct {
	Name     string         `json:"name"`
	Exported bool           `json:"exported"`
	Filters  []IntentFilter `json:"filters"`
}

// Provider is a content provider component. Authority may hold several
// authorities separated by semicolons.
type Provider struct {
	Component
	Authority string `json:"authority"`
}

// Package is the parsed manifest view of an installed package. Instances are
// immutable once handed to the filter; a replace produces a new instance.
type Package struct {
	Name                 string            `json:"name"`
	ForceQueryable       bool              `json:"force_queryable"`
	StaticSharedLibrary  bool              `json:"static_shared_library"`
	TestOnly             bool              `json:"test_only"`
	Debuggable           bool              `json:"debuggable"`
	ProtectedBroadcasts  []string          `json:"protected_broadcasts"`
	Activities           []Component       `json:"activities"`
	Services             []Component       `json:"services"`
	Receivers            []Component       `json:"receivers"`
	Providers            []Provider        `json:"providers"`
	QueriesPackages      []string          `json:"queries_packages"`
	QueriesIntents       []Intent          `json:"queries_intents"`
	QueriesProviders     []string          `json:"queries_providers"`
	Instrumentations     []Instrumentation `json:"instrumentations"`
	RequestedPermissions []string          `json:"requested_permissions"`
	OverlayTarget        string            `json:"overlay_target"`
	OverlayActors        []string          `json:"overlay_actors"`
}

// Setting is the install-time record for a package, owned by the
// authoritative package store.
type Setting struct {
	Name                   string         `json:"name"`
	AppID                  AppID          `json:"app_id"`
	System                 bool           `json:"system"`
	ForceQueryableOverride bool           `json:"force_queryable_override"`
	Signing                SigningDetails `json:"signing"`
	InstallSource          InstallSource  `json:"install_source"`

	// SharedUserName names the shared identity the package opted into, empty
	// for a package-private identity. Membership is immutable after install.
	SharedUserName string `json:"shared_user"`

	// SharedUser is resolved from SharedUserName by the state provider.
	SharedUser *SharedUser `json:"-"`

	// Pkg is nil when the package record exists but the package is not
	// currently installed (e.g. mid-update).
	Pkg *Package `json:"pkg"`
}

// SharedUser groups the settings that share one AppID.
type SharedUser struct {
	Name     string
	Packages []*Setting
}
