package main

import (
	"testing"
)

func TestParsePublications(t *testing.T) {
	got, err := parsePublications([]string{"/chat=hello", "/kv=a=b", "/empty="})
	if err != nil {
		t.Fatalf("parsePublications failed: %v", err)
	}

	want := []publication{
		{destination: "/chat", content: "hello"},
		{destination: "/kv", content: "a=b"},
		{destination: "/empty", content: ""},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d publications, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("publication %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"no-separator", "=content"} {
		if _, err := parsePublications([]string{bad}); err == nil {
			t.Errorf("parsePublications(%q) expected error", bad)
		}
	}
}
