// Package operations implements the per-item work behind each operation
// type: exif, thumbnail, timestamp_correction and analysis.
//
// Every operation satisfies batch.Operation. Expected failures such as a
// missing file or an undecodable image come back as error outcomes; a Go
// error means the catalog or blob store could not be written.
package operations
