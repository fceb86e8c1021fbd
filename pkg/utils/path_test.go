package utils

import (
	"reflect"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		wantErr     bool
		errContains string
	}{
		{name: "valid nested key", path: "users/u1/t.db"},
		{name: "leading slash allowed", path: "/users/u1/t.db"},
		{name: "tilde folder", path: "users/~t.db/rec-1-2.adb"},
		{name: "dots inside a name", path: "a/..b/c"},
		{name: "empty", path: "", wantErr: true, errContains: "cannot be empty"},
		{name: "only slashes", path: "///", wantErr: true, errContains: "cannot be empty"},
		{name: "traversal at start", path: "../etc/passwd", wantErr: true, errContains: "directory traversal"},
		{name: "traversal in middle", path: "a/../../b", wantErr: true, errContains: "directory traversal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateKey(%q) expected error", tt.path)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateKey(%q) unexpected error: %v", tt.path, err)
			}
		})
	}
}

func TestCleanAndJoinKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		root, path string
		want       string
	}{
		{"", "a/b", "a/b"},
		{"", "/a//b/", "a/b"},
		{"", "/", ""},
		{"tenant", "t.db", "tenant/t.db"},
		{"/tenant/", "/dir/t.db", "tenant/dir/t.db"},
		{"tenant", "", "tenant"},
	}

	for _, tt := range tests {
		t.Run(tt.root+"|"+tt.path, func(t *testing.T) {
			if got := JoinKey(tt.root, tt.path); got != tt.want {
				t.Errorf("JoinKey(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
			}
		})
	}
}

func TestPrefixKey(t *testing.T) {
	t.Parallel()

	if got := PrefixKey("", ""); got != "" {
		t.Errorf("root prefix = %q, want empty", got)
	}
	if got := PrefixKey("tenant", "~t.db"); got != "tenant/~t.db/" {
		t.Errorf("PrefixKey = %q", got)
	}
}

func TestRelativeKeyAndChildName(t *testing.T) {
	t.Parallel()

	rel, ok := RelativeKey("a/", "a/b/c.txt")
	if !ok || rel != "b/c.txt" {
		t.Errorf("RelativeKey = %q, %v", rel, ok)
	}
	if _, ok := RelativeKey("x/", "a/b"); ok {
		t.Error("key outside prefix should not be relative")
	}
	if got := ChildName(rel); got != "b" {
		t.Errorf("ChildName(%q) = %q, want b", rel, got)
	}
	if got := ChildName("file.txt"); got != "file.txt" {
		t.Errorf("ChildName = %q", got)
	}
}

func TestUniqueSorted(t *testing.T) {
	t.Parallel()

	got := UniqueSorted([]string{"b", "a", "", "b", "c", "a"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueSorted = %v, want %v", got, want)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	items := make([]int, 2500)
	chunks := Chunk(items, 1000)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[2]) != 500 {
		t.Errorf("last chunk = %d, want 500", len(chunks[2]))
	}
	if Chunk([]int{}, 10) != nil {
		t.Error("empty input should give nil")
	}
	if got := Chunk([]int{1, 2}, 0); len(got) != 1 || len(got[0]) != 2 {
		t.Errorf("non-positive size should give one chunk, got %v", got)
	}
}
