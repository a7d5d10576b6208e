package filter

import (
	"testing"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

func TestCanQueryViaPackage(t *testing.T) {
	target := &pkginfo.Package{Name: "target"}

	if canQueryViaPackage(&pkginfo.Package{}, target) {
		t.Error("no declaration, no visibility")
	}
	if !canQueryViaPackage(&pkginfo.Package{QueriesPackages: []string{"other", "target"}}, target) {
		t.Error("declared package name should match")
	}
}

func TestCanQueryAsInstaller(t *testing.T) {
	installer := &pkginfo.Setting{Name: "installer"}
	storefront := &pkginfo.Setting{Name: "storefront"}

	installee := &pkginfo.Setting{
		Name: "installee",
		InstallSource: pkginfo.InstallSource{
			InstallerPackageName:  "installer",
			InitiatingPackageName: "storefront",
		},
	}

	if !canQueryAsInstaller(installer, installee) {
		t.Error("the installer sees the installee")
	}
	if !canQueryAsInstaller(storefront, installee) {
		t.Error("the initiating installer sees the installee")
	}
	if canQueryAsInstaller(installee, installer) {
		t.Error("the relation is not symmetric")
	}

	installee.InstallSource.InitiatingPackageUninstalled = true
	if canQueryAsInstaller(storefront, installee) {
		t.Error("an uninstalled initiator grants nothing")
	}
	if !canQueryAsInstaller(installer, installee) {
		t.Error("the recorded installer is unaffected by the initiator flag")
	}
}

func TestCanQueryViaComponents_ReceiverVsService(t *testing.T) {
	protected := make(set[string])
	protected.add("sys.BOOT")

	querying := &pkginfo.Package{QueriesIntents: []pkginfo.Intent{{Action: "sys.BOOT"}}}
	filters := []pkginfo.IntentFilter{{Actions: []string{"sys.BOOT"}}}

	receiverTarget := &pkginfo.Package{
		Receivers: []pkginfo.Component{{Name: "r", Exported: true, Filters: filters}},
	}
	if canQueryViaComponents(querying, receiverTarget, protected) {
		t.Error("protected action must not grant receiver-based visibility")
	}

	serviceTarget := &pkginfo.Package{
		Services: []pkginfo.Component{{Name: "s", Exported: true, Filters: filters}},
	}
	if !canQueryViaComponents(querying, serviceTarget, protected) {
		t.Error("service matches ignore the protected-broadcast set")
	}
}

func TestMatchesProviders(t *testing.T) {
	target := &pkginfo.Package{Providers: []pkginfo.Provider{
		{Component: pkginfo.Component{Name: "p1", Exported: true}, Authority: "alpha;beta"},
		{Component: pkginfo.Component{Name: "p2"}, Authority: "hidden"},
	}}

	if !matchesProviders([]string{"beta"}, target) {
		t.Error("any authority in the semicolon list should match")
	}
	if matchesProviders([]string{"hidden"}, target) {
		t.Error("unexported providers grant nothing")
	}
	if matchesProviders([]string{"gamma"}, target) {
		t.Error("unrelated authority should not match")
	}
}

func TestPkgInstruments(t *testing.T) {
	source := &pkginfo.Package{Instrumentations: []pkginfo.Instrumentation{{TargetPackage: "b"}}}
	if !pkgInstruments(source, &pkginfo.Package{Name: "b"}) {
		t.Error("declared instrumentation target should match")
	}
	if pkgInstruments(source, &pkginfo.Package{Name: "c"}) {
		t.Error("other packages are not instrumented")
	}
}

func TestRequestsQueryAllPackages(t *testing.T) {
	with := &pkginfo.Package{RequestedPermissions: []string{"x", pkginfo.QueryAllPackagesPermission}}
	without := &pkginfo.Package{RequestedPermissions: []string{"x"}}

	if !requestsQueryAllPackages(with) {
		t.Error("permission present")
	}
	if requestsQueryAllPackages(without) {
		t.Error("permission absent")
	}
}
