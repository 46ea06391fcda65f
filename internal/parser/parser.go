package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sstent/garmindash/internal/models"
)

// Parser decodes one activity file format.
type Parser interface {
	ParseData(data []byte) (*models.ActivityMetrics, error)
}

func NewParser(fileType FileType) (Parser, error) {
	switch fileType {
	case FileTypeFIT:
		return NewFITParser(), nil
	case FileTypeTCX:
		return &TCXParser{}, nil
	case FileTypeGPX:
		return &GPXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

// Parse detects the format of data, unwrapping a zip download if needed,
// and decodes it.
func Parse(data []byte) (*models.ActivityMetrics, error) {
	fileType := DetectFileTypeFromData(data)
	if fileType == FileTypeZIP {
		inner, err := unzipActivity(data)
		if err != nil {
			return nil, err
		}
		data = inner
		fileType = DetectFileTypeFromData(data)
	}

	p, err := NewParser(fileType)
	if err != nil {
		return nil, err
	}
	return p.ParseData(data)
}

// maxActivityFileSize caps how much of an archive entry is decompressed.
var maxActivityFileSize int64 = 64 << 20

// unzipActivity returns the first activity file in the archive.
func unzipActivity(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	for _, f := range zr.File {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".fit", ".tcx", ".gpx":
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()

		inner, err := io.ReadAll(io.LimitReader(rc, maxActivityFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s in archive: %w", f.Name, err)
		}
		if int64(len(inner)) > maxActivityFileSize {
			return nil, fmt.Errorf("%s in archive is larger than %d bytes", f.Name, maxActivityFileSize)
		}
		return inner, nil
	}
	return nil, fmt.Errorf("no activity file found in zip archive")
}
