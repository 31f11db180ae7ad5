// Package mediatypes holds the built-in extension table and the small set of
// shared media constants used across the catalog.
//
// It has no dependencies beyond the standard library so that database,
// filetypes, operations and handlers can all import it without cycles.
//
// # Categories
//
//	mediatypes.CategoryImage    // jpg, png, heic, webp, ...
//	mediatypes.CategoryRawImage // cr2, nef, arw, dng, ...
//	mediatypes.CategoryVideo
//	mediatypes.CategoryAudio
//	mediatypes.CategoryDocument
//	mediatypes.CategoryOther
//
// # Default file types
//
// Defaults returns the rows the file_types table is seeded with on first
// start. Extensions are stored lower case without the leading dot; use
// NormalizeExtension or ExtensionOf before looking one up:
//
//	ext := mediatypes.ExtensionOf("IMG_0001.JPG") // "jpg"
//	cat := mediatypes.GetCategory(ext)            // CategoryImage
//
// Sidecar and metadata files (xmp, aae, json) are seeded with Ignore set so
// the batch pipeline skips them.
package mediatypes
