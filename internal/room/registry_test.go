package room

import (
	"testing"
	"time"
)

func TestCanonicalID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"abcd", "ABCD", true},
		{" Game-42 ", "GAME-42", true},
		{"ABCDEFGH1234", "ABCDEFGH1234", true},
		{"abc", "", false},
		{"waaaay-too-long", "", false},
		{"bad id", "", false},
		{"room_1", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := CanonicalID(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("CanonicalID(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("CanonicalID(%q) accepted", tc.in)
		}
	}
}

func TestGetOrCreateIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry(50)
	a, err := reg.GetOrCreate("lobby-1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.GetOrCreate("LOBBY-1")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same id with different casing produced two rooms")
	}
	if reg.Len() != 1 {
		t.Fatalf("registry holds %d rooms", reg.Len())
	}
	if _, err := reg.GetOrCreate("no spaces"); err == nil {
		t.Fatalf("invalid id must be rejected")
	}
}

func TestSweepIdle(t *testing.T) {
	reg := NewRegistry(50)
	if _, err := reg.GetOrCreate("idle"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.GetOrCreate("busy"); err != nil {
		t.Fatal(err)
	}

	// nothing is older than the threshold yet
	if evicted := reg.SweepIdle(time.Now(), time.Hour); len(evicted) != 0 {
		t.Fatalf("fresh rooms evicted: %v", evicted)
	}

	future := time.Now().Add(2 * time.Hour)
	evicted := reg.SweepIdle(future, time.Hour)
	if len(evicted) != 2 {
		t.Fatalf("expected both rooms evicted, got %v", evicted)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry still holds %d rooms", reg.Len())
	}
	if reg.Has("IDLE") {
		t.Fatalf("evicted room still present")
	}
}
