package deviceconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

func TestFeatureFlags_MasterSwitch(t *testing.T) {
	source := NewStaticSource()
	ff := NewFeatureFlags(source, NewStaticCompat(), func(string) *pkginfo.Setting { return nil }, nil)

	if !ff.IsGloballyEnabled() {
		t.Error("filtering defaults to enabled")
	}

	source.Set(FilteringEnabledKey, false)
	ff.OnSystemReady()
	if ff.IsGloballyEnabled() {
		t.Error("system-ready should pick up the stored value")
	}

	source.Set(FilteringEnabledKey, true)
	if !ff.IsGloballyEnabled() {
		t.Error("the change listener should track later flips")
	}
}

func TestFeatureFlags_CompatDisable(t *testing.T) {
	source := NewStaticSource()
	compat := NewStaticCompat()
	setting := &pkginfo.Setting{Name: "a", AppID: 10100, Pkg: &pkginfo.Package{Name: "a"}}
	ff := NewFeatureFlags(source, compat, func(name string) *pkginfo.Setting {
		if name == "a" {
			return setting
		}
		return nil
	}, nil)
	ff.OnSystemReady()

	if !ff.PackageIsEnabled(setting.Pkg) {
		t.Fatal("packages start enabled")
	}
	compat.SetChangeEnabled(FilterApplicationQueryChange, "a", false)
	if ff.PackageIsEnabled(setting.Pkg) {
		t.Error("disabling the compat change should disable the package")
	}
	compat.SetChangeEnabled(FilterApplicationQueryChange, "a", true)
	if !ff.PackageIsEnabled(setting.Pkg) {
		t.Error("re-enabling the compat change should re-enable the package")
	}
}

func TestFeatureFlags_UpdatePackageState(t *testing.T) {
	ff := NewFeatureFlags(NewStaticSource(), NewStaticCompat(), func(string) *pkginfo.Setting { return nil }, nil)

	debuggable := &pkginfo.Setting{
		Name:  "dbg",
		AppID: 10100,
		Pkg:   &pkginfo.Package{Name: "dbg", Debuggable: true},
	}
	ff.UpdatePackageState(debuggable, false)
	if !ff.IsLoggingEnabled(10100) {
		t.Error("debuggable packages get logging on install")
	}

	ff.UpdatePackageState(debuggable, true)
	if ff.IsLoggingEnabled(10100) {
		t.Error("removal turns logging back off")
	}

	plain := &pkginfo.Setting{Name: "plain", AppID: 10101, Pkg: &pkginfo.Package{Name: "plain"}}
	ff.UpdatePackageState(plain, false)
	if ff.IsLoggingEnabled(10101) {
		t.Error("ordinary packages do not get logging")
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	content := []byte(`
force_queryable_packages:
  - launcher
  - settings
platform_equivalent_fingerprints:
  - feedface
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(profile.ForceQueryablePackages) != 2 || profile.ForceQueryablePackages[0] != "launcher" {
		t.Errorf("unexpected force-queryable list: %v", profile.ForceQueryablePackages)
	}
	if profile.SystemAppsQueryable {
		t.Error("flag should default off")
	}
	if len(profile.PlatformEquivalentFingerprints) != 1 {
		t.Errorf("unexpected fingerprints: %v", profile.PlatformEquivalentFingerprints)
	}
}

func TestLoadProfile_SystemAppsQueryableDropsList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	content := []byte(`
system_apps_queryable: true
force_queryable_packages: [launcher]
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !profile.SystemAppsQueryable {
		t.Fatal("flag should be set")
	}
	if profile.ForceQueryablePackages != nil {
		t.Error("all system apps queryable makes the exception list redundant")
	}
}

func TestLoadProfile_EmptyPath(t *testing.T) {
	profile, err := LoadProfile("")
	if err != nil {
		t.Fatal(err)
	}
	if profile.SystemAppsQueryable || profile.ForceQueryablePackages != nil {
		t.Error("empty path yields the zero profile")
	}
}
