package ir

import "golang.org/x/text/unicode/norm"

// NormalizeModule returns the NFC form of a module name.
//
// Module names are compared byte-for-byte by the store, so "é" written as a
// single code point and as "e" + combining accent must collapse to one form
// before they are written or used as a filter.
func NormalizeModule(module string) string {
	return norm.NFC.String(module)
}
