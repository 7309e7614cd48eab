package davpath

import "testing"

func TestParseNormalizesDotSegments(t *testing.T) {
	p, err := Parse("", "/a/./b/../c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := p.String(), "/a/c"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseIdempotent(t *testing.T) {
	inputs := []string{"/", "/a/b/", "/a/b", "/a/./b/../../c"}
	for _, in := range inputs {
		p1, err := Parse("", in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		p2, err := Parse("", p1.String())
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if p1.String() != p2.String() {
			t.Errorf("normalize not idempotent for %q: %q != %q", in, p1.String(), p2.String())
		}
	}
}

func TestCollectionTrailingSlash(t *testing.T) {
	p, err := Parse("", "/foo/")
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsCollection() {
		t.Fatal("expected collection")
	}
	q, err := Parse("", "/foo")
	if err != nil {
		t.Fatal(err)
	}
	if q.IsCollection() {
		t.Fatal("expected resource")
	}
	if !p.Equal(q) {
		t.Fatal("paths should be equal modulo trailing slash")
	}
}

func TestPrefixStripping(t *testing.T) {
	p, err := Parse("/dav", "/dav/foo/bar")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.String(), "/foo/bar"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if _, err := Parse("/dav", "/other/foo"); err == nil {
		t.Fatal("expected ErrOutsidePrefix")
	}
}

func TestPercentDecodeRejectsNUL(t *testing.T) {
	if _, err := Parse("", "/a%00b"); err == nil {
		t.Fatal("expected error for embedded NUL")
	}
}

func TestPercentDecodeRejectsSlash(t *testing.T) {
	if _, err := Parse("", "/a%2fb"); err == nil {
		t.Fatal("expected error for decoded slash")
	}
}

func TestIncludedRespectsDepth(t *testing.T) {
	if _, ok := Included("/a/b/c", "/a", 1); ok {
		t.Fatal("depth 1 should not include grandchildren")
	}
	if rel, ok := Included("/a/b", "/a", 1); !ok || rel != "b" {
		t.Fatalf("expected included b, got %q %v", rel, ok)
	}
	if _, ok := Included("/a/b/c", "/a", -1); !ok {
		t.Fatal("infinite depth should include grandchildren")
	}
}

func TestStarIsReserved(t *testing.T) {
	p, err := Parse("", "*")
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsStar() {
		t.Fatal("expected star path")
	}
}
