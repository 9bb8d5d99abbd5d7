package transform

import (
	"fmt"
	"strings"
)

// Format is an encoded file format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatGIF  Format = "gif"
	FormatPDF  Format = "pdf"
)

// ConvertTargets are the formats an image can be converted into.
var ConvertTargets = []Format{FormatJPEG, FormatPNG, FormatWebP, FormatAVIF}

// ParseFormat normalises a format name. "jpg" is accepted as jpeg.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "jpg":
		return FormatJPEG, nil
	case FormatJPEG, FormatPNG, FormatWebP, FormatAVIF, FormatGIF, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ParseConvertTarget accepts only the formats listed in ConvertTargets.
func ParseConvertTarget(s string) (Format, error) {
	f, err := ParseFormat(s)
	if err != nil {
		return "", fmt.Errorf("%w: target format %q", ErrInvalidParams, s)
	}
	for _, target := range ConvertTargets {
		if f == target {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: target format %q", ErrInvalidParams, s)
}

func (f Format) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	case FormatGIF:
		return "image/gif"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Extension is the file extension used when an output is written to disk or
// object storage.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case "":
		return "bin"
	default:
		return string(f)
	}
}

func (f Format) String() string {
	return string(f)
}
