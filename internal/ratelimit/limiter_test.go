package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinQuota(t *testing.T) {
	l := New(map[string]int{"send_message": 3})

	for i := 0; i < 3; i++ {
		if !l.Allow("u1", "send_message") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("u1", "send_message") {
		t.Fatal("4th request should be rejected")
	}
}

func TestWindowRollover(t *testing.T) {
	now := time.Now()
	l := New(map[string]int{"send_message": 1}).WithClock(func() time.Time { return now })

	if !l.Allow("u1", "send_message") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("u1", "send_message") {
		t.Fatal("second request in same window should be rejected")
	}

	now = now.Add(DefaultWindow + time.Second)
	if !l.Allow("u1", "send_message") {
		t.Fatal("request after window rollover should be allowed")
	}
}

func TestSubjectsAndActionsIndependent(t *testing.T) {
	l := New(map[string]int{"send_message": 1, "typing_start": 1})

	if !l.Allow("u1", "send_message") {
		t.Fatal("u1 send should be allowed")
	}
	if l.Allow("u1", "send_message") {
		t.Fatal("u1 second send should be rejected")
	}
	if !l.Allow("u2", "send_message") {
		t.Fatal("u2 send should not be affected by u1's window")
	}
	if !l.Allow("u1", "typing_start") {
		t.Fatal("u1 typing should not be affected by send window")
	}
}

func TestUnconfiguredActionUnlimited(t *testing.T) {
	l := New(map[string]int{"send_message": 1})

	for i := 0; i < 100; i++ {
		if !l.Allow("u1", "leave_conversation") {
			t.Fatal("unconfigured action should never be limited")
		}
	}
}

func TestResetClearsSubjectWindows(t *testing.T) {
	l := New(map[string]int{"send_message": 1})

	l.Allow("u1", "send_message")
	l.Allow("u2", "send_message")
	l.Reset("u1")

	if !l.Allow("u1", "send_message") {
		t.Fatal("u1 should have a fresh window after reset")
	}
	if l.Allow("u2", "send_message") {
		t.Fatal("u2's window must survive u1's reset")
	}
}
