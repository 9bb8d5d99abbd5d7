//go:build !govips || !cgo

package transform

func Startup() error {
	return nil
}

func Shutdown() {}

// Backend names the image backend compiled into the binary.
const Backend = "stdlib"

func newImageTransformer() imageTransformer {
	return stdlibTransformer{}
}
