//go:build unix

package server

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}

// isNotDir はパスの途中がファイルだった場合（/app.js/x など）を判定する
func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}
