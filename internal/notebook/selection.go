// SPDX-License-Identifier: MPL-2.0

package notebook

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseSelection parses a --cells expression like "1,3-5,8" into a sorted,
// deduplicated list of 1-based cell numbers. total is the number of
// runnable code cells; selections past it are rejected.
func ParseSelection(expr string, total int) ([]int, error) {
	seen := map[int]bool{}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty cell selection in %q", expr)
		}

		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo < 1 {
			return nil, fmt.Errorf("cell numbers are 1-based, got %d", lo)
		}
		if hi > total {
			return nil, fmt.Errorf("cell %d out of range (notebook has %d runnable code cells)", hi, total)
		}

		for n := lo; n <= hi; n++ {
			seen[n] = true
		}
	}

	cells := make([]int, 0, len(seen))
	for n := range seen {
		cells = append(cells, n)
	}
	sort.Ints(cells)
	return cells, nil
}

// parseRange parses "N" or "N-M" into an inclusive range.
func parseRange(part string) (int, int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid cell range %q", part)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid cell range %q", part)
		}
		if end < start {
			return 0, 0, fmt.Errorf("reversed cell range %q", part)
		}
		return start, end, nil
	}

	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cell number %q", part)
	}
	return n, n, nil
}
