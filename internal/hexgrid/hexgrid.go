// Package hexgrid provides axial-coordinate math for a flat-top hex map.
// Hexes are addressed by a canonical "q,r" string key.
package hexgrid

import (
	"fmt"
	"strconv"
	"strings"
)

// Flat-top neighbor offsets in axial coordinates, clockwise from east.
var flatTopDirections = [6][2]int{
	{1, 0},   // east
	{1, -1},  // northeast
	{0, -1},  // northwest
	{-1, 0},  // west
	{-1, 1},  // southwest
	{0, 1},   // southeast
}

// Key builds the canonical string key for axial coordinates (q, r).
func Key(q, r int) string {
	return strconv.Itoa(q) + "," + strconv.Itoa(r)
}

// ParseKey parses a "q,r" key into axial coordinates.
func ParseKey(key string) (q, r int, err error) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid hex key %q", key)
	}
	q, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hex key %q: %w", key, err)
	}
	r, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hex key %q: %w", key, err)
	}
	return q, r, nil
}

// NeighborKeys returns the six flat-top neighbor keys of the given hex.
// Malformed keys yield an empty slice.
func NeighborKeys(key string) []string {
	q, r, err := ParseKey(key)
	if err != nil {
		return nil
	}
	neighbors := make([]string, 0, len(flatTopDirections))
	for _, d := range flatTopDirections {
		neighbors = append(neighbors, Key(q+d[0], r+d[1]))
	}
	return neighbors
}

// Adjacent computes the set of hex keys that border a revealed hex but are
// not themselves revealed. Only keys present in allHexes are included, so
// off-map neighbors never leak into the result.
func Adjacent(revealed, allHexes map[string]struct{}) map[string]struct{} {
	adjacent := make(map[string]struct{})
	for key := range revealed {
		for _, neighbor := range NeighborKeys(key) {
			if _, isRevealed := revealed[neighbor]; isRevealed {
				continue
			}
			if _, onMap := allHexes[neighbor]; onMap {
				adjacent[neighbor] = struct{}{}
			}
		}
	}
	return adjacent
}

// CubeDistance returns the hex-grid distance between two keys using the
// derived cube coordinate s = -q-r: max(|dq|, |dr|, |ds|).
// Malformed keys return -1.
func CubeDistance(a, b string) int {
	aq, ar, err := ParseKey(a)
	if err != nil {
		return -1
	}
	bq, br, err := ParseKey(b)
	if err != nil {
		return -1
	}
	dq := abs(aq - bq)
	dr := abs(ar - br)
	ds := abs((-aq - ar) - (-bq - br))
	return max3(dq, dr, ds)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
