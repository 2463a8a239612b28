package domain

import "strings"

// JurisdictionSeparator joins hierarchy levels in a jurisdiction code.
const JurisdictionSeparator = "-"

// NormalizeJurisdictionCode trims and upper-cases a jurisdiction code.
func NormalizeJurisdictionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// JurisdictionContains reports whether parent contains child by code prefix.
// A code contains itself.
func JurisdictionContains(parent, child string) bool {
	parent = NormalizeJurisdictionCode(parent)
	child = NormalizeJurisdictionCode(child)
	if parent == "" || child == "" {
		return false
	}
	if parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+JurisdictionSeparator)
}

// JurisdictionAncestors lists the codes containing code, outermost first and
// including code itself: "US-CA-LA" yields ["US", "US-CA", "US-CA-LA"].
func JurisdictionAncestors(code string) []string {
	code = NormalizeJurisdictionCode(code)
	if code == "" {
		return nil
	}
	parts := strings.Split(code, JurisdictionSeparator)
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], JurisdictionSeparator))
	}
	return out
}

// JurisdictionDepth is the number of hierarchy levels in code.
func JurisdictionDepth(code string) int {
	return len(JurisdictionAncestors(code))
}
