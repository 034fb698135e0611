// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package orderedset provides the ordered set-union primitive shared by
// the projection merge implementations.
package orderedset

import (
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Union combines two ordered unique id lists.  The side with more
// elements is kept as the primary ordering and novel ids from the other
// side are appended in their original relative order; equal-length
// inputs tie-break on content so Union(a, b) == Union(b, a).
func Union(a, b []string) []string {
	primary, secondary := a, b
	if len(b) > len(a) || (len(b) == len(a) &&
		strings.Join(b, "\x00") < strings.Join(a, "\x00")) {

		primary, secondary = b, a
	}

	out := make([]string, 0, len(primary)+len(secondary))
	seen := fn.NewSet[string]()
	for _, id := range primary {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	for _, id := range secondary {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	return out
}

// Contains reports whether id is present in ids.
func Contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Remove returns ids without id, preserving order.  Removing an absent id
// returns the slice unchanged.
func Remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			out := make([]string, 0, len(ids)-1)
			out = append(out, ids[:i]...)
			return append(out, ids[i+1:]...)
		}
	}
	return ids
}
