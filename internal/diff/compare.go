package diff

import (
	"strconv"
	"unicode"

	"github.com/roach88/tramites/internal/value"
)

// Options tunes composite comparison.
type Options struct {
	// Structural also reports array elements and object keys present on one
	// side only, with a Null standing in for the missing side. By default
	// only values at paths present on both sides are reported.
	Structural bool
}

// LeafChange is one difference found inside a composite value.
type LeafChange struct {
	Path string // relative to the field root, e.g. [2].nombre
	Old  value.Value
	New  value.Value
}

// Compare walks two values and returns their leaf differences.
//
// Objects are compared on shared keys in canonical key order and arrays
// index-wise over the shared prefix. When the two sides hold different
// kinds (object vs array, null vs list) the whole subtree is reported as a
// single change at that path.
func Compare(before, after value.Value, opts Options) []LeafChange {
	var out []LeafChange
	walk("", before, after, opts, &out)
	return out
}

func walk(path string, a, b value.Value, opts Options, out *[]LeafChange) {
	if value.Equal(a, b) {
		return
	}

	switch x := a.(type) {
	case value.Object:
		if y, ok := b.(value.Object); ok {
			walkObject(path, x, y, opts, out)
			return
		}
	case value.Array:
		if y, ok := b.(value.Array); ok {
			walkArray(path, x, y, opts, out)
			return
		}
	}

	*out = append(*out, LeafChange{Path: path, Old: a, New: b})
}

func walkObject(path string, a, b value.Object, opts Options, out *[]LeafChange) {
	for _, k := range a.SortedKeys() {
		next := path + keySegment(k)
		bv, ok := b[k]
		if ok {
			walk(next, a[k], bv, opts, out)
			continue
		}
		if opts.Structural && !value.IsNull(a[k]) {
			*out = append(*out, LeafChange{Path: next, Old: a[k], New: value.Null{}})
		}
	}

	if !opts.Structural {
		return
	}
	for _, k := range b.SortedKeys() {
		if _, ok := a[k]; ok || value.IsNull(b[k]) {
			continue
		}
		*out = append(*out, LeafChange{Path: path + keySegment(k), Old: value.Null{}, New: b[k]})
	}
}

func walkArray(path string, a, b value.Array, opts Options, out *[]LeafChange) {
	shared := min(len(a), len(b))
	for i := 0; i < shared; i++ {
		walk(path+indexSegment(i), a[i], b[i], opts, out)
	}

	if !opts.Structural {
		return
	}
	for i := shared; i < len(a); i++ {
		*out = append(*out, LeafChange{Path: path + indexSegment(i), Old: a[i], New: value.Null{}})
	}
	for i := shared; i < len(b); i++ {
		*out = append(*out, LeafChange{Path: path + indexSegment(i), Old: value.Null{}, New: b[i]})
	}
}

func indexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

// keySegment renders an object key as .key, or as ["key"] when the key is
// empty or contains characters other than letters, digits and underscores.
func keySegment(k string) string {
	if isIdentifier(k) {
		return "." + k
	}
	return "[" + strconv.Quote(k) + "]"
}

func isIdentifier(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
