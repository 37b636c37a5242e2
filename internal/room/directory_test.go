package room

import (
	"sort"
	"testing"
)

func TestAddAndMembers(t *testing.T) {
	d := NewDirectory()
	d.Add("c1", "u1")
	d.Add("c1", "u2")
	d.Add("c1", "u1") // joining twice is a no-op

	members := d.Members("c1")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "u1" || members[1] != "u2" {
		t.Fatalf("unexpected members: %v", members)
	}
}

func TestMembersSnapshotIsolated(t *testing.T) {
	d := NewDirectory()
	d.Add("c1", "u1")

	snap := d.Members("c1")
	snap[0] = "mutated"

	if got := d.Members("c1"); got[0] != "u1" {
		t.Fatalf("mutating the snapshot must not affect the directory, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	d := NewDirectory()
	d.Add("c1", "u1")
	d.Add("c1", "u2")
	d.Remove("c1", "u1")

	if d.Contains("c1", "u1") {
		t.Fatal("u1 should be gone from c1")
	}
	if !d.Contains("c1", "u2") {
		t.Fatal("u2 should remain in c1")
	}
	if got := d.UserConversations("u1"); len(got) != 0 {
		t.Fatalf("u1 should have no conversations, got %v", got)
	}
}

func TestRemoveUserReturnsAllRooms(t *testing.T) {
	d := NewDirectory()
	d.Add("c1", "u1")
	d.Add("c2", "u1")
	d.Add("c2", "u2")

	rooms := d.RemoveUser("u1")
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "c1" || rooms[1] != "c2" {
		t.Fatalf("expected [c1 c2], got %v", rooms)
	}
	if d.Contains("c1", "u1") || d.Contains("c2", "u1") {
		t.Fatal("u1 should be removed from every room")
	}
	if !d.Contains("c2", "u2") {
		t.Fatal("other members must be untouched")
	}
}

func TestRemoveUserUnknownUser(t *testing.T) {
	d := NewDirectory()
	if rooms := d.RemoveUser("ghost"); len(rooms) != 0 {
		t.Fatalf("expected no rooms, got %v", rooms)
	}
}
