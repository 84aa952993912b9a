// Package fs contains the local filesystem plumbing of the resolver: the symlink
// and copy Linker drivers, shapefile sibling-set linking, atomic writes, and
// recursive removal.
package fs
