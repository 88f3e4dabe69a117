//go:build windows

package server

import (
	"errors"

	"golang.org/x/sys/windows"
)

func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE)
}

// Windows ではパス途中のファイルは ERROR_PATH_NOT_FOUND となり fs.ErrNotExist で拾える
func isNotDir(err error) bool {
	return errors.Is(err, windows.ERROR_DIRECTORY)
}
