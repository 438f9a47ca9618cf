package sink

import "strings"

// Key identifies a stored catalog artifact.
type Key struct {
	// Quarter is the term code, e.g. "20202".
	Quarter string

	// Suffix distinguishes companion keys such as "meta".
	Suffix string
}

// String generates a deterministic key string.
// Format: ucsb:classes:quarter:suffix
//
// Example:
//
//	ucsb:classes:20202:meta
func (k Key) String() string {
	parts := []string{"ucsb", "classes"}

	if quarter := strings.TrimSpace(k.Quarter); quarter != "" {
		parts = append(parts, quarter)
	}

	if k.Suffix != "" {
		parts = append(parts, k.Suffix)
	}

	return strings.Join(parts, ":")
}

// Meta returns the companion key holding run metadata.
func (k Key) Meta() Key {
	k.Suffix = "meta"
	return k
}

// ObjectName returns the object path for the catalog under prefix.
func (k Key) ObjectName(prefix string) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if k.Quarter != "" {
		parts = append(parts, k.Quarter)
	}
	parts = append(parts, DefaultFileName)
	return strings.Join(parts, "/")
}
