// Package millstone defines the project document model shared by the resolver packages.
//
// A project (an MML-like map description) names stylesheets and data layers, any of which may
// point at remote URLs, absolute files, or files relative to the project directory.  Resolution
// (see the resolv package) localizes all of them: remote content is downloaded into a
// content-addressed cache, archives are unpacked, files are linked under the project's layers/
// directory, and every layer ends up with a datasource type and a spatial reference system.
package millstone
