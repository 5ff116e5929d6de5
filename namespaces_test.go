package shellcache

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/always-cache/shellcache/cache"
)

func TestNamespaceNames(t *testing.T) {
	ns, err := NewNamespaces("lms", "v3")
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"lms-v3-static", "lms-v3-dynamic", "lms-v3-image"}
	if !reflect.DeepEqual(ns.All(), expected) {
		t.Fatalf("Namespaces are %v", ns.All())
	}
}

func TestNamespaceOwnership(t *testing.T) {
	ns, _ := NewNamespaces("lms", "v3")
	tests := []struct {
		name    string
		owns    bool
		current bool
	}{
		{"lms-v3-static", true, true},
		{"lms-v2-static", true, false},
		{"lms-v3-unknown", true, false},
		{"lmsx-v3-static", false, false},
		{"other-v3-static", false, false},
	}
	for _, test := range tests {
		if owns := ns.Owns(test.name); owns != test.owns {
			t.Errorf("Owns(%s) is %v", test.name, owns)
		}
		if current := ns.IsCurrent(test.name); current != test.current {
			t.Errorf("IsCurrent(%s) is %v", test.name, current)
		}
	}
}

func TestVersionChangesAllNames(t *testing.T) {
	v1, _ := NewNamespaces("lms", "v1")
	v2, _ := NewNamespaces("lms", "v2")
	for i, name := range v1.All() {
		if name == v2.All()[i] {
			t.Fatalf("Namespace %s shared between versions", name)
		}
	}
}

func TestNamespaceValidation(t *testing.T) {
	if _, err := NewNamespaces("", "v1"); err == nil {
		t.Fatal("Empty prefix accepted")
	}
	if _, err := NewNamespaces("lms", ""); err == nil {
		t.Fatal("Empty version accepted")
	}
	if _, err := NewNamespaces("my-lms", "v1"); err == nil {
		t.Fatal("Prefix with separator accepted")
	}
}

func TestStats(t *testing.T) {
	store := cache.NewMemCache()
	store.Put("lms-v0-static", "k", []byte("12345"))
	w := newWorker(t, testConfig(store, newNetwork(appHandler), "v1"))
	w.Install(context.Background())

	stats, err := w.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("Stats are %+v", stats)
	}
	if s := stats[0]; s.Name != "lms-v0-static" || s.Current || s.Entries != 1 || s.Bytes != 5 {
		t.Fatalf("Stats of old namespace are %+v", s)
	}
	if s := stats[1]; s.Name != "lms-v1-static" || !s.Current || s.Entries != 2 || s.Bytes == 0 {
		t.Fatalf("Stats of current namespace are %+v", s)
	}
}

func TestEntries(t *testing.T) {
	w := activeWorker(t, testConfig(cache.NewMemCache(), newNetwork(appHandler), "v1"))

	entries, err := w.Entries("lms-v1-static")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Entries are %+v", entries)
	}
	if e := entries[1]; e.Method != "GET" || e.URL != testOrigin+"/offline" || e.Bytes == 0 {
		t.Fatalf("Entry is %+v", e)
	}
	if _, err := w.Entries("crm-v1-static"); !errors.Is(err, cache.ErrorInvalidNamespace) {
		t.Fatalf("Error is %v", err)
	}
}
