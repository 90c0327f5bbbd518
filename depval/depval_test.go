// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package depval

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmpty(t *testing.T) {
	var h Handle
	if !h.Empty() {
		t.Fatalf("Handle{}.Empty:\nhave false\nwant true")
	}
	if n := h.Index(); n != 0 {
		t.Fatalf("Handle{}.Index:\nhave %d\nwant 0", n)
	}
	h.SimulateChange()
	if n := h.Index(); n != 0 {
		t.Fatalf("Handle{}.Index after SimulateChange:\nhave %d\nwant 0", n)
	}
}

func TestNewNoFiles(t *testing.T) {
	h, err := New()
	if err != nil {
		t.Fatalf("New():\nhave %v\nwant nil", err)
	}
	if !h.Empty() {
		t.Fatalf("New().Empty:\nhave false\nwant true")
	}
}

func TestSimulateChangeIncrements(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	h, err := New(f)
	if err != nil {
		t.Fatalf("New(%q):\nhave %v\nwant nil", f, err)
	}
	if n := h.Index(); n != 0 {
		t.Fatalf("fresh Handle.Index:\nhave %d\nwant 0", n)
	}
	h.SimulateChange()
	if n := h.Index(); n != 1 {
		t.Fatalf("Handle.Index after SimulateChange:\nhave %d\nwant 1", n)
	}
	h.SimulateChange()
	if n := h.Index(); n != 2 {
		t.Fatalf("Handle.Index after 2nd SimulateChange:\nhave %d\nwant 2", n)
	}
}

func TestFileChangeIncrementsIndex(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	h, err := New(f)
	if err != nil {
		t.Fatalf("New(%q):\nhave %v\nwant nil", f, err)
	}
	before := h.Index()

	if err := os.WriteFile(f, []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Index() > before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Handle.Index after file write:\nhave %d\nwant > %d", h.Index(), before)
}

func TestUnion(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.txt")
	f2 := filepath.Join(dir, "b.txt")
	for _, f := range []string{f1, f2} {
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	h1, err := New(f1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := New(f2)
	if err != nil {
		t.Fatal(err)
	}
	u, err := Union(h1, h2)
	if err != nil {
		t.Fatalf("Union:\nhave %v\nwant nil", err)
	}
	if u.Empty() {
		t.Fatalf("Union(h1,h2).Empty:\nhave true\nwant false")
	}
	files := u.Files()
	if len(files) != 2 {
		t.Fatalf("Union(h1,h2).Files:\nhave %d entries\nwant 2", len(files))
	}

	before := u.Index()
	h1.SimulateChange()
	// h1 and u do not alias; simulating a change on h1 must not
	// affect u's independent index.
	if u.Index() != before {
		t.Fatalf("Union index after unrelated SimulateChange:\nhave %d\nwant %d", u.Index(), before)
	}
	u.SimulateChange()
	if u.Index() != before+1 {
		t.Fatalf("Union index after SimulateChange:\nhave %d\nwant %d", u.Index(), before+1)
	}
}

func TestFresh(t *testing.T) {
	h := Fresh()
	if h.Empty() {
		t.Fatalf("Fresh().Empty:\nhave true\nwant false")
	}
	if n := h.Index(); n != 0 {
		t.Fatalf("Fresh().Index:\nhave %d\nwant 0", n)
	}
	h.SimulateChange()
	if n := h.Index(); n != 1 {
		t.Fatalf("Fresh().Index after SimulateChange:\nhave %d\nwant 1", n)
	}
}

func TestUnionEmpty(t *testing.T) {
	u, err := Union(Handle{}, Handle{})
	if err != nil {
		t.Fatal(err)
	}
	if !u.Empty() {
		t.Fatalf("Union({},{}).Empty:\nhave false\nwant true")
	}
}
