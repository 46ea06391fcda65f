// internal/parser/detector.go
package parser

import (
	"bytes"
)

type FileType string

const (
	FileTypeFIT     FileType = "fit"
	FileTypeTCX     FileType = "tcx"
	FileTypeGPX     FileType = "gpx"
	FileTypeZIP     FileType = "zip"
	FileTypeUnknown FileType = "unknown"
)

var zipMagic = []byte("PK\x03\x04")

// DetectFileTypeFromData sniffs the format from the leading bytes.
func DetectFileTypeFromData(data []byte) FileType {
	// FIT header carries ".FIT" at bytes 8-11
	if len(data) >= 12 && bytes.Equal(data[8:12], []byte(".FIT")) {
		return FileTypeFIT
	}

	// Garmin wraps original files in a zip archive
	if bytes.HasPrefix(data, zipMagic) {
		return FileTypeZIP
	}

	head := bytes.TrimLeft(data[:min(len(data), 1024)], "\xef\xbb\xbf \t\r\n")
	if bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<")) {
		if bytes.Contains(head, []byte("TrainingCenterDatabase")) {
			return FileTypeTCX
		}
		if bytes.Contains(head, []byte("<gpx")) ||
			bytes.Contains(head, []byte("topografix.com/GPX")) {
			return FileTypeGPX
		}
	}

	return FileTypeUnknown
}
