// Package resolv localizes the external resources of a map project.
//
// Resolve takes a project document whose stylesheets and layers may point at
// remote urls, absolute paths, or paths relative to the project, and returns a
// copy where every stylesheet is inline and every layer datasource names a file
// on local disk, with its backend type and SRS filled in.  Remote content is
// cached, archives are unpacked, and files are linked into the project's layers
// directory.
//
// Resolution runs in stages: setup, stylesheets, layers, attached databases,
// autodetection, and finalization.  Within a stage all items are processed
// concurrently and the stage finishes only once every item has; the error of the
// first failed item (by position in the document) then aborts the resolution.
//
// Flush undoes the resolution of a single remote layer, removing its link in the
// project and its cache entry.
package resolv
