// Package pkg is the root of packages that implement the Weft composition
// runtime.
package pkg
