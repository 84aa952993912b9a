// Package metadata maps remote urls to their place in the download cache, and
// reads and writes the sidecar records kept next to cached files.
//
// A sidecar is a hidden JSON file co-located with the cached file it describes
// (foo.zip is described by .foo.zip).  It records the response headers and final
// url of the transfer that produced the file, used later to infer an extension
// when the url had none, and for archives the member chosen on extraction, so an
// archive is unpacked only once.
package metadata
