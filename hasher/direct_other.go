//go:build !linux

package hasher

import "io"

func digestDirect(string, io.Writer) error {
	return errDirectUnsupported
}
