package filter

import (
	"reflect"
	"testing"

	"github.com/meridian-os/appscope/internal/pkginfo"
)

func TestSetMap_AddContains(t *testing.T) {
	m := make(setMap[pkginfo.AppID, pkginfo.AppID])

	if !m.add(1, 2) {
		t.Error("first add should report insertion")
	}
	if m.add(1, 2) {
		t.Error("duplicate add should report no insertion")
	}
	if !m.contains(1, 2) {
		t.Error("expected membership after add")
	}
	if m.contains(2, 1) {
		t.Error("the relation is directed")
	}
}

func TestSetMap_RemoveKey(t *testing.T) {
	m := make(setMap[pkginfo.AppID, pkginfo.AppID])
	m.add(1, 2)
	m.add(1, 3)

	m.removeKey(1)
	if m.contains(1, 2) || m.contains(1, 3) {
		t.Error("removeKey should drop the whole row")
	}
}

func TestSetMap_RemoveValue(t *testing.T) {
	m := make(setMap[pkginfo.AppID, pkginfo.AppID])
	m.add(1, 2)
	m.add(3, 2)
	m.add(3, 4)

	m.removeValue(2)
	if m.contains(1, 2) || m.contains(3, 2) {
		t.Error("removeValue should drop the value from every row")
	}
	if !m.contains(3, 4) {
		t.Error("other values must survive")
	}
	if _, ok := m[1]; ok {
		t.Error("rows left empty should be pruned")
	}
}

func TestSortedInts(t *testing.T) {
	s := make(set[pkginfo.AppID])
	s.add(30)
	s.add(10)
	s.add(20)

	got := sortedInts(s)
	want := []pkginfo.AppID{10, 20, 30}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedInts = %v, want %v", got, want)
	}
}

func TestUIDCache(t *testing.T) {
	c := newUIDCache(0)
	c.put(1010100, 1010101, true)
	c.put(1010100, 1010102, false)
	c.put(10101, 1010100, false)

	v, rowPresent, ok := c.lookup(1010100, 1010101)
	if !rowPresent || !ok || !v {
		t.Error("expected cached true verdict")
	}
	_, rowPresent, ok = c.lookup(9999999, 1)
	if rowPresent || ok {
		t.Error("unknown caller should be a row miss")
	}
	_, rowPresent, ok = c.lookup(1010100, 42)
	if !rowPresent || ok {
		t.Error("unknown target should be an entry miss on a present row")
	}

	c.removeApp(pkginfo.UID(1010100).App())
	if _, rowPresent, _ := c.lookup(1010100, 1010101); rowPresent {
		t.Error("rows keyed by the removed appId must be gone")
	}
	if _, _, ok := c.lookup(10101, 1010100); ok {
		t.Error("inner entries targeting the removed appId must be gone")
	}
}

func TestSerialExecutor_RunsInOrder(t *testing.T) {
	e := NewSerialExecutor()
	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		e.Execute(func() { got = append(got, i) })
	}
	e.Execute(func() { close(done) })
	<-done
	e.Stop()

	want := []int{0, 1, 2, 3, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tasks ran as %v, want %v", got, want)
	}
}

func TestSerialExecutor_StopDropsLateTasks(t *testing.T) {
	e := NewSerialExecutor()
	e.Stop()
	// must not panic or hang
	e.Execute(func() { t.Error("task after Stop must not run") })
}
