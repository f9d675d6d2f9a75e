package storage

import (
	"strings"
)

// StrongEtag remove "W/" prefix and quotes from ETag.
// In some cases S3 return ETag with "W/" prefix which mean that it not strong ETag.
func StrongEtag(s *string) string {
	if s == nil {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(*s, "W/"), "\"")
}

// IsDirMarker reports whether key is a pseudo-directory marker.
func IsDirMarker(key string) bool {
	return strings.HasSuffix(key, DirMarkerSuffix)
}

// JoinKey joins prefix and name with a single "/" and strips leading slashes.
func JoinKey(prefix, name string) string {
	prefix = strings.TrimRight(prefix, "/")
	name = strings.TrimLeft(name, "/")
	key := name
	if prefix != "" {
		key = prefix + "/" + name
	}
	return strings.TrimLeft(key, "/")
}
