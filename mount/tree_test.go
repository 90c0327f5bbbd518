// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package mount

import (
	"strconv"
	"testing"

	"github.com/spf13/afero"
)

func drain(t *testing.T, it *Iterator) ([]Candidate, error) {
	t.Helper()
	var out []Candidate
	for {
		c, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, c)
	}
}

// TestLookupPriorityOrder verifies mount-priority ordering (mounts are
// tried in the order they were added): mount fs1 at "a/b", fs2 at "a";
// lookup "a/b/x" yields (fs1, "x") then (fs2, "b/x").
func TestLookupPriorityOrder(t *testing.T) {
	tree := New()
	fs1 := afero.NewMemMapFs()
	fs2 := afero.NewMemMapFs()
	tree.Mount("a/b", fs1)
	tree.Mount("a", fs2)

	cands, err := drain(t, tree.Lookup("a/b/x"))
	if err != nil {
		t.Fatalf("drain:\nhave %v\nwant nil", err)
	}
	if len(cands) != 2 {
		t.Fatalf("len(cands):\nhave %d\nwant 2", len(cands))
	}
	if cands[0].FS != fs1 || cands[0].Path != "x" {
		t.Fatalf("cands[0]:\nhave {%v %q}\nwant {fs1 \"x\"}", cands[0].FS, cands[0].Path)
	}
	if cands[1].FS != fs2 || cands[1].Path != "b/x" {
		t.Fatalf("cands[1]:\nhave {%v %q}\nwant {fs2 \"b/x\"}", cands[1].FS, cands[1].Path)
	}
}

// TestLookupInvalidatedMidEnumeration verifies that unmounting fs1
// mid-enumeration causes the next Next() to report ErrInvalidated.
func TestLookupInvalidatedMidEnumeration(t *testing.T) {
	tree := New()
	fs1 := afero.NewMemMapFs()
	fs2 := afero.NewMemMapFs()
	id1 := tree.Mount("a/b", fs1)
	tree.Mount("a", fs2)

	it := tree.Lookup("a/b/x")
	c, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("first Next:\nhave (%v,%v,%v)\nwant (cand,true,nil)", c, ok, err)
	}

	tree.Unmount(id1)

	_, ok, err = it.Next()
	if err != ErrInvalidated {
		t.Fatalf("Next after unmount:\nhave err=%v\nwant ErrInvalidated", err)
	}
	if ok {
		t.Fatalf("Next after unmount: ok=true, want false")
	}
}

func TestLookupNoMountsExhausts(t *testing.T) {
	tree := New()
	_, ok, err := tree.Lookup("x/y").Next()
	if err != nil || ok {
		t.Fatalf("Next on empty tree:\nhave (ok=%v err=%v)\nwant (false nil)", ok, err)
	}
}

func TestLookupDotDotUnderflowIsAbsolute(t *testing.T) {
	tree := New()
	def := afero.NewMemMapFs()
	tree.SetDefault(def)
	tree.Mount("a", afero.NewMemMapFs())

	cands, err := drain(t, tree.Lookup("../escape"))
	if err != nil {
		t.Fatalf("drain:\nhave %v\nwant nil", err)
	}
	if len(cands) != 1 || cands[0].FS != def {
		t.Fatalf("cands:\nhave %+v\nwant [default]", cands)
	}
	if cands[0].Path != "../escape" {
		t.Fatalf("cands[0].Path:\nhave %q\nwant %q", cands[0].Path, "../escape")
	}
}

func TestLookupExplicitMountSelector(t *testing.T) {
	tree := New()
	fs1 := afero.NewMemMapFs()
	id := tree.Mount("a", fs1)

	cands, err := drain(t, tree.Lookup("0:/inner/path"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		// id is never 0 (IDs start at 1), so "0:/..." must not resolve.
		t.Fatalf("cands for bogus id 0:\nhave %+v\nwant []", cands)
	}

	path := strconv.FormatInt(int64(id), 10) + ":/inner/path"
	cands, err = drain(t, tree.Lookup(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].FS != fs1 || cands[0].Path != "inner/path" {
		t.Fatalf("cands:\nhave %+v\nwant [{fs1 inner/path}]", cands)
	}
}

func TestLookupWindowsDriveIsAbsolute(t *testing.T) {
	tree := New()
	def := afero.NewMemMapFs()
	tree.SetDefault(def)

	cands, err := drain(t, tree.Lookup("C:/Users/x"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].FS != def || cands[0].Path != "C:/Users/x" {
		t.Fatalf("cands:\nhave %+v\nwant [{default C:/Users/x}]", cands)
	}
}

func TestUnmountUnknownID(t *testing.T) {
	tree := New()
	if tree.Unmount(999) {
		t.Fatalf("Unmount(999):\nhave true\nwant false")
	}
}
