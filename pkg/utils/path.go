package utils

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// ValidateKey checks that a caller-supplied object path cannot escape the
// adapter's logical root.
//
// Object keys are always slash separated, regardless of the host OS, so this
// works on path rather than filepath. Returns an error if the path:
//   - is empty or only slashes
//   - contains a ".." segment
//
// Example usage:
//
//	if err := ValidateKey(tablePath); err != nil {
//		return errors.NewError(errors.ErrCodeInvalidPath, err.Error())
//	}
func ValidateKey(p string) error {
	if strings.Trim(p, "/") == "" {
		return fmt.Errorf("path cannot be empty")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("path contains directory traversal: %s", p)
		}
	}
	return nil
}

// CleanKey normalizes a path into an object key: no leading slash, no
// duplicate or trailing slashes. The root itself becomes "".
func CleanKey(p string) string {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	c := path.Clean(p)
	if c == "." {
		return ""
	}
	return c
}

// JoinKey joins a logical root and a relative path into a full object key.
func JoinKey(root, p string) string {
	return CleanKey(path.Join(root, p))
}

// PrefixKey returns the listing prefix for a folder path: the cleaned key
// with a trailing slash, or "" for the root.
func PrefixKey(root, p string) string {
	k := JoinKey(root, p)
	if k == "" {
		return ""
	}
	return k + "/"
}

// RelativeKey strips prefix from key. The second return is false when key is
// not under prefix.
func RelativeKey(prefix, key string) (string, bool) {
	if prefix == "" {
		return key, true
	}
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return key[len(prefix):], true
}

// ChildName returns the first path segment of rel, i.e. the name a directory
// listing shows for a key nested arbitrarily deep under the listed folder.
func ChildName(rel string) string {
	rel = strings.TrimLeft(rel, "/")
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

// UniqueSorted de-duplicates names, drops empties and sorts the result.
func UniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
