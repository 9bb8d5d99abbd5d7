package transform

import (
	"errors"
)

var (
	ErrInvalidParams     = errors.New("invalid parameters")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidAction     = errors.New("invalid image action")
	ErrImageTooLarge     = errors.New("image exceeds pixel limit")
)

// Op names a transform operation.
type Op string

const (
	OpCompressImage Op = "compress_image"
	OpResizeImage   Op = "resize_image"
	OpConvertImage  Op = "convert_image"
	OpCompressPDF   Op = "compress_pdf"
	OpMergePDFs     Op = "merge_pdfs"
	OpSplitPDF      Op = "split_pdf"
)

// Ops lists every operation in a stable order.
var Ops = []Op{OpCompressImage, OpResizeImage, OpConvertImage, OpCompressPDF, OpMergePDFs, OpSplitPDF}

func ParseOp(s string) (Op, bool) {
	for _, op := range Ops {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

// FailureMessage is the caller-facing message reported when op fails.
func (o Op) FailureMessage() string {
	switch o {
	case OpCompressImage, OpCompressPDF:
		return "compression failed"
	case OpResizeImage:
		return "resize failed"
	case OpConvertImage:
		return "conversion failed"
	case OpMergePDFs:
		return "merge failed"
	case OpSplitPDF:
		return "split failed"
	default:
		return "transform failed"
	}
}

// Error reports a failed operation. Error() is the generic failure message;
// the underlying cause stays reachable through Unwrap.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return e.Op.FailureMessage()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause renders the full error chain for logs.
func (e *Error) Cause() string {
	if e.Err == nil {
		return e.Error()
	}
	return e.Error() + ": " + e.Err.Error()
}

func fail(op Op, err error) error {
	return &Error{Op: op, Err: err}
}
