//go:build !unix && !windows

package server

import "strings"

func isAddrInUse(err error) bool {
	return err != nil && strings.Contains(err.Error(), "address already in use")
}

func isNotDir(error) bool {
	return false
}
