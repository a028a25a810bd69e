package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pario-ai/backstop/pkg/models"
)

// Fingerprint computes a SHA-256 hash of the semantic fields of req.
// Item order, case, duplicates and whitespace runs do not affect it, and
// neither do RequestID or Timestamp.
func Fingerprint(req models.Request) string {
	h := sha256.New()
	h.Write([]byte("kind=" + normalize(string(req.Kind)) + "\n"))

	seen := make(map[string]bool, len(req.Items))
	items := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		n := normalize(it)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		items = append(items, n)
	}
	sort.Strings(items)
	for _, it := range items {
		h.Write([]byte("item=" + it + "\n"))
	}

	attrs := make([]string, 0, len(req.Attributes))
	for k, v := range req.Attributes {
		k, v = normalize(k), normalize(v)
		if k == "" || v == "" {
			continue
		}
		attrs = append(attrs, strconv.Quote(k)+"="+strconv.Quote(v))
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		h.Write([]byte("attr:" + a + "\n"))
	}

	h.Write([]byte("prompt=" + normalize(req.Prompt)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
