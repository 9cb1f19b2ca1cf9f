package utils

import (
	// Go Internal Packages
	"strings"
)

// UniqueStrings flattens the given slices, dropping empty values and
// duplicates while keeping first-seen order.
func UniqueStrings(groups ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, group := range groups {
		for _, s := range group {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether s is one of values.
func Contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// ShortAddress trims a ledger address for log lines, e.g. rMxCKb…8m5De.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-5:]
}

func JoinAddresses(addrs []string) string {
	short := make([]string, len(addrs))
	for i, a := range addrs {
		short[i] = ShortAddress(a)
	}
	return strings.Join(short, ",")
}
