package utils

import (
	"cmp"
	"strconv"
	"strings"
)

// CompareIDs orders CRM record IDs: numeric IDs numerically, anything else
// lexically after them.
func CompareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
