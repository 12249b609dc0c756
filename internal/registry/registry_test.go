package registry

import (
	"strings"
	"testing"
	"time"
)

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	r := New()

	c1 := r.Register("127.0.0.1:1001", nil)
	c2 := r.Register("127.0.0.1:1002", nil)
	c3 := r.Register("127.0.0.1:1003", nil)

	if c1.ID >= c2.ID || c2.ID >= c3.ID {
		t.Errorf("ids not increasing: %d, %d, %d", c1.ID, c2.ID, c3.ID)
	}
	if r.Count() != 3 {
		t.Errorf("Count = %d", r.Count())
	}

	r.Unregister(c2.ID)
	if r.Count() != 2 {
		t.Errorf("Count after Unregister = %d", r.Count())
	}

	// IDs are unique for the process lifetime, never reused.
	c4 := r.Register("127.0.0.1:1004", nil)
	if c4.ID <= c3.ID {
		t.Errorf("id reuse: %d after %d", c4.ID, c3.ID)
	}
}

func TestListFormat(t *testing.T) {
	r := New()
	c := r.Register("10.0.0.1:5555", nil)
	c.SetName("worker")
	c.Touch("GET", time.Now())

	list := r.List()
	line := strings.TrimSuffix(list, "\n")

	for _, want := range []string{
		"id=", "addr=10.0.0.1:5555", "name=worker", "age=", "idle=",
		"flags=N", "db=0", "sub=0", "psub=0", "cmd=get",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestListOrderedByID(t *testing.T) {
	r := New()
	r.Register("a:1", nil)
	r.Register("a:2", nil)
	r.Register("a:3", nil)

	lines := strings.Split(strings.TrimSpace(r.List()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, "addr=a:"+string(rune('1'+i))) {
			t.Errorf("line %d out of order: %q", i, line)
		}
	}
}

func TestPubSubFlag(t *testing.T) {
	r := New()
	c := r.Register("a:1", nil)

	c.SetSubCounts(2, 1)
	if !c.InPubSub() {
		t.Error("InPubSub = false")
	}
	if !strings.Contains(r.List(), "flags=P") {
		t.Error("flags=P missing for subscribed client")
	}
	if !strings.Contains(r.List(), "sub=2 psub=1") {
		t.Errorf("sub counters missing: %q", r.List())
	}
}

func TestKill(t *testing.T) {
	r := New()

	killedA := false
	killedB := false
	a := r.Register("host:1", func() { killedA = true })
	b := r.Register("host:2", func() { killedB = true })
	b.SetSubCounts(1, 0)

	if n := r.Kill(KillFilter{ID: a.ID}); n != 1 || !killedA {
		t.Errorf("Kill by id = %d, killed=%v", n, killedA)
	}

	killedA = false
	if n := r.Kill(KillFilter{Addr: "host:2"}); n != 1 || !killedB || killedA {
		t.Errorf("Kill by addr = %d", n)
	}

	killedA, killedB = false, false
	if n := r.Kill(KillFilter{Type: "pubsub"}); n != 1 || !killedB {
		t.Errorf("Kill by type pubsub = %d", n)
	}
	if killedA {
		t.Error("normal client killed by pubsub filter")
	}

	if n := r.Kill(KillFilter{Type: "normal"}); n != 1 || !killedA {
		t.Errorf("Kill by type normal = %d", n)
	}

	if n := r.Kill(KillFilter{ID: 9999}); n != 0 {
		t.Errorf("Kill unknown id = %d", n)
	}
}

func TestPause(t *testing.T) {
	r := New()

	if d := r.PauseRemaining(); d != 0 {
		t.Errorf("initial PauseRemaining = %v", d)
	}

	r.Pause(time.Minute)
	if d := r.PauseRemaining(); d <= 50*time.Second {
		t.Errorf("PauseRemaining = %v", d)
	}

	r.Unpause()
	if d := r.PauseRemaining(); d != 0 {
		t.Errorf("PauseRemaining after Unpause = %v", d)
	}

	// An elapsed deadline reads as not paused.
	r.Pause(time.Nanosecond)
	time.Sleep(time.Millisecond)
	if d := r.PauseRemaining(); d != 0 {
		t.Errorf("PauseRemaining after expiry = %v", d)
	}
}

func TestInfo(t *testing.T) {
	r := New()
	c := r.Register("h:1", nil)

	line, ok := r.Info(c.ID)
	if !ok || !strings.Contains(line, "addr=h:1") {
		t.Errorf("Info = %q, %v", line, ok)
	}
	if _, ok := r.Info(999); ok {
		t.Error("Info for unknown id = ok")
	}
}
