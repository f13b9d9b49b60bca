package service

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	rankingsKeyPrefix    = "rankings:"
	vendorGradeKeyPrefix = "vendor_grade:"
)

// CachePrefixes lists every read-model key family that a publish makes stale.
var CachePrefixes = []string{rankingsKeyPrefix, vendorGradeKeyPrefix}

// NormalizeVendorType is the canonical form used for filtering and keys.
func NormalizeVendorType(vendorType string) string {
	return strings.ToLower(strings.TrimSpace(vendorType))
}

// RankingsCacheKey identifies one filtered view of the latest snapshot, e.g.
// "rankings:vt=installer:g=A". An absent filter leaves its segment empty;
// values are query-escaped so no vendor type can spell another key.
func RankingsCacheKey(f RankFilter) string {
	vt := url.QueryEscape(NormalizeVendorType(f.VendorType))
	minGrade := url.QueryEscape(string(f.MinGrade))
	return fmt.Sprintf("%svt=%s:g=%s", rankingsKeyPrefix, vt, minGrade)
}

func VendorGradeCacheKey(vendorID string) string {
	return vendorGradeKeyPrefix + vendorID
}
