package fileid

import (
	"strings"
	"testing"
)

func TestPathID(t *testing.T) {
	id1 := PathID("/foo/bar.txt")
	if id1 != PathID("/foo/bar.txt") {
		t.Error("same path should give same ID")
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	if id1 == PathID("/foo/baz.txt") {
		t.Errorf("different paths should give different IDs: %q", id1)
	}
}

func TestPathID_normalized(t *testing.T) {
	id1 := PathID("/foo/bar")
	if id1 != PathID("/foo/bar/") {
		t.Error("paths differing only by trailing slash should match")
	}
	if id1 != PathID("/foo/./bar") {
		t.Error("paths with . should normalize")
	}
}

func TestSourceID(t *testing.T) {
	a := SourceID("/inbox/memo.txt", []byte("v1"))
	if a != SourceID("/inbox/./memo.txt", []byte("v1")) {
		t.Error("same path and content should give same ID")
	}
	if a == SourceID("/inbox/memo.txt", []byte("v2")) {
		t.Error("edited content should give a new ID")
	}
	if a == SourceID("/inbox/other.txt", []byte("v1")) {
		t.Error("same content at another path should give a new ID")
	}
	if a == PathID("/inbox/memo.txt") {
		t.Error("source ID should differ from path ID")
	}
}
