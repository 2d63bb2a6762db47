package location

import "testing"

func files(paths ...string) FileChecker {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return FileCheckerFunc(func(p string) bool { return set[p] })
}

func TestEditorLess(t *testing.T) {
	tests := []struct {
		a, b Editor
		want bool
	}{
		{Editor{"/a/A.java", 10}, Editor{"/a/B.java", 1}, true},
		{Editor{"/a/B.java", 1}, Editor{"/a/A.java", 10}, false},
		{Editor{"/a/A.java", 1}, Editor{"/a/A.java", 2}, true},
		{Editor{"/a/A.java", 2}, Editor{"/a/A.java", 2}, false},
	}

	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Errorf("%v.Less(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCleanRoots(t *testing.T) {
	got := CleanRoots([]string{"/p/src/main/java/", "", "  ", "/p/test//", "/"})
	want := []string{"/p/src/main/java", "/p/test", "/"}

	if len(got) != len(want) {
		t.Fatalf("CleanRoots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("root %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestJavaResolverToBackend(t *testing.T) {
	r := NewJavaResolver([]string{"/p/src/main/java/", "/p/src/test/java"}, files())

	tests := []struct {
		name   string
		in     Editor
		want   Backend
		wantOK bool
	}{
		{"main root", Editor{"/p/src/main/java/com/acme/Foo.java", 10}, Backend{"com.acme.Foo", 10}, true},
		{"second root", Editor{"/p/src/test/java/com/acme/FooTest.java", 3}, Backend{"com.acme.FooTest", 3}, true},
		{"default package", Editor{"/p/src/main/java/Main.java", 1}, Backend{"Main", 1}, true},
		{"outside roots", Editor{"/p/scripts/Tool.java", 5}, Backend{"/p/scripts/Tool.java", 5}, false},
		{"not java", Editor{"/p/src/main/java/com/acme/notes.txt", 5}, Backend{"/p/src/main/java/com/acme/notes.txt", 5}, false},
		{"invalid line", Editor{"/p/src/main/java/A.java", 0}, Backend{"/p/src/main/java/A.java", 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ToBackend(tt.in)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ToBackend(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJavaResolverToEditor(t *testing.T) {
	r := NewJavaResolver(
		[]string{"/p/src/main/java", "/p/src/test/java"},
		files("/p/src/test/java/com/acme/FooTest.java", "/p/src/main/java/com/acme/Outer.java"),
	)

	got, ok := r.ToEditor(Backend{"com.acme.FooTest", 7})
	if !ok || got != (Editor{"/p/src/test/java/com/acme/FooTest.java", 7}) {
		t.Errorf("got %v ok=%v", got, ok)
	}

	got, ok = r.ToEditor(Backend{"com.acme.Outer$Inner", 12})
	if !ok || got.Path != "/p/src/main/java/com/acme/Outer.java" {
		t.Errorf("nested class: got %v ok=%v", got, ok)
	}

	got, ok = r.ToEditor(Backend{"org.missing.Thing", 4})
	if ok {
		t.Error("expected unresolved for missing class")
	}
	if got.Path != "org.missing.Thing" || got.Line != 4 {
		t.Errorf("expected raw fallback, got %v", got)
	}
}

func TestJavaResolverCandidates(t *testing.T) {
	r := NewJavaResolver([]string{"/a", "/b"}, files())

	got := r.Candidates("x.Y")
	want := []string{"/a/x/Y.java", "/b/x/Y.java", "x.Y"}
	if len(got) != len(want) {
		t.Fatalf("Candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestJavaResolverRawPathTarget(t *testing.T) {
	r := NewJavaResolver([]string{"/p/src"}, files("/p/scripts/Tool.java"))

	got, ok := r.ToEditor(Backend{"/p/scripts/Tool.java", 2})
	if !ok || got.Path != "/p/scripts/Tool.java" {
		t.Errorf("got %v ok=%v", got, ok)
	}
}

func TestJavaResolverRoundTrip(t *testing.T) {
	paths := []string{
		"/p/src/main/java/A/B/Foo.java",
		"/p/src/test/java/A/B/FooTest.java",
		"/p/gen/Generated.java",
	}
	r := NewJavaResolver([]string{"/p/src/main/java", "/p/src/test/java", "/p/gen"}, files(paths...))

	for _, p := range paths {
		in := Editor{Path: p, Line: 10}
		b, ok := r.ToBackend(in)
		if !ok {
			t.Fatalf("ToBackend(%v) unresolved", in)
		}
		out, ok := r.ToEditor(b)
		if !ok {
			t.Fatalf("ToEditor(%v) unresolved", b)
		}
		if out != in {
			t.Errorf("round trip %v -> %v -> %v", in, b, out)
		}
	}
}

func TestPathResolver(t *testing.T) {
	r := NewPathResolver(
		[]string{"/p"},
		[]Mapping{{Local: "/p/svc/", Remote: "/go/src/svc"}},
	)

	b, ok := r.ToBackend(Editor{"/p/svc/main.go", 9})
	if !ok || b.Target != "/go/src/svc/main.go" {
		t.Errorf("mapped ToBackend = %v ok=%v", b, ok)
	}

	b, ok = r.ToBackend(Editor{"/p/lib/util.go", 3})
	if !ok || b.Target != "/p/lib/util.go" {
		t.Errorf("root ToBackend = %v ok=%v", b, ok)
	}

	_, ok = r.ToBackend(Editor{"/elsewhere/x.go", 3})
	if ok {
		t.Error("expected unresolved outside roots")
	}

	e, ok := r.ToEditor(Backend{"/go/src/svc/main.go", 9})
	if !ok || e.Path != "/p/svc/main.go" {
		t.Errorf("ToEditor = %v ok=%v", e, ok)
	}

	e, ok = r.ToEditor(Backend{"/usr/lib/go/src/runtime/proc.go", 200})
	if ok || e.Path != "/usr/lib/go/src/runtime/proc.go" {
		t.Errorf("expected raw unresolved, got %v ok=%v", e, ok)
	}
}

func TestPathResolverRoundTrip(t *testing.T) {
	r := NewPathResolver([]string{"/p"}, []Mapping{{Local: "/p/app", Remote: "/srv/app"}})

	for _, in := range []Editor{{"/p/app/main.py", 4}, {"/p/tools/gen.py", 8}} {
		b, ok := r.ToBackend(in)
		if !ok {
			t.Fatalf("ToBackend(%v) unresolved", in)
		}
		out, ok := r.ToEditor(b)
		if !ok || out != in {
			t.Errorf("round trip %v -> %v -> %v (ok=%v)", in, b, out, ok)
		}
	}
}

func TestMux(t *testing.T) {
	java := NewJavaResolver([]string{"/p/src"}, files("/p/src/a/Foo.java"))
	paths := NewPathResolver([]string{"/p"}, nil)

	m := NewMux(paths)
	m.Handle(java, ".java", "JAVA")

	b, ok := m.ToBackend(Editor{"/p/src/a/Foo.java", 1})
	if !ok || b.Target != "a.Foo" {
		t.Errorf("java ToBackend = %v ok=%v", b, ok)
	}

	b, ok = m.ToBackend(Editor{"/p/web/app.js", 2})
	if !ok || b.Target != "/p/web/app.js" {
		t.Errorf("fallback ToBackend = %v ok=%v", b, ok)
	}

	if m.ResolverFor("/x/Foo.JAVA") != java {
		t.Error("extension lookup should be case-insensitive")
	}

	e, ok := m.ToEditor(Backend{"a.Foo", 1})
	if !ok || e.Path != "/p/src/a/Foo.java" {
		t.Errorf("ToEditor = %v ok=%v", e, ok)
	}
}

func TestMuxWithoutFallback(t *testing.T) {
	m := NewMux(nil)

	b, ok := m.ToBackend(Editor{"/p/x.rb", 1})
	if ok || b.Target != "/p/x.rb" {
		t.Errorf("got %v ok=%v", b, ok)
	}
	e, ok := m.ToEditor(Backend{"x", 1})
	if ok || e.Path != "x" {
		t.Errorf("got %v ok=%v", e, ok)
	}
}
