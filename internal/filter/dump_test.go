package filter

import (
	"strings"
	"testing"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

func TestDumpQueries_Content(t *testing.T) {
	ts := newTestSystem(t)
	a := newSetting("a", 10100)
	a.ForceQueryableOverride = true
	b := newSetting("b", 10101)
	b.Pkg.QueriesPackages = []string{"c"}
	c := newSetting("c", 10102)
	ts.add(a)
	ts.add(b)
	ts.add(c)
	ts.filter.GrantImplicitAccess(pkginfo.UIDOf(0, 10101), pkginfo.UIDOf(0, 10102))

	names := map[pkginfo.AppID]string{10100: "a", 10101: "b", 10102: "c"}
	var sb strings.Builder
	ts.filter.DumpQueries(&sb, nil, []pkginfo.UserID{0}, func(id pkginfo.AppID) string {
		return names[id]
	})
	out := sb.String()

	for _, want := range []string{
		"system apps queryable: false",
		"forceQueryable:",
		"queries via package name:",
		"queries via intent:",
		"queryable via interaction:",
		"User 0:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q\n%s", want, out)
		}
	}
	if !strings.Contains(out, "    a\n") {
		t.Errorf("force-queryable entry should be expanded to the package name\n%s", out)
	}
}

func TestDumpQueries_Disabled(t *testing.T) {
	ts := newTestSystem(t)
	ts.feature.enabled = false

	var sb strings.Builder
	ts.filter.DumpQueries(&sb, nil, nil, nil)
	if !strings.Contains(sb.String(), "DISABLED") {
		t.Errorf("disabled master switch should be reported\n%s", sb.String())
	}
}

func TestDumpQueries_FilteredToOneAppID(t *testing.T) {
	ts := newTestSystem(t)
	a := newSetting("a", 10100)
	b := newSetting("b", 10101)
	b.Pkg.QueriesPackages = []string{"a"}
	c := newSetting("c", 10102)
	c.Pkg.QueriesPackages = []string{"b"}
	ts.add(a)
	ts.add(b)
	ts.add(c)

	target := pkginfo.AppID(10100)
	var sb strings.Builder
	ts.filter.DumpQueries(&sb, &target, []pkginfo.UserID{0}, nil)
	out := sb.String()

	if !strings.Contains(out, "10101") {
		t.Errorf("row touching the filtered id should appear\n%s", out)
	}
	if strings.Contains(out, "10102") {
		t.Errorf("rows not touching the filtered id should be omitted\n%s", out)
	}
}
