package server

import (
	"errors"
	"fmt"
)

// ErrAddrInUse はポートが他のプロセスに使用されていることを表す
var ErrAddrInUse = errors.New("address already in use")

// BindError はリスナーのバインド失敗を表す
type BindError struct {
	Addr  string
	Port  int
	InUse bool // ポートが使用中かどうか
	Err   error
}

// newBindError は net.Listen のエラーを分類して BindError にする
func newBindError(addr string, port int, err error) *BindError {
	return &BindError{
		Addr:  addr,
		Port:  port,
		InUse: isAddrInUse(err),
		Err:   err,
	}
}

func (e *BindError) Error() string {
	if e.InUse {
		return fmt.Sprintf("ポート %d は既に使用されています: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("%s へのバインドに失敗: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Is は使用中ポートによる失敗を ErrAddrInUse として判定できるようにする
func (e *BindError) Is(target error) bool {
	return target == ErrAddrInUse && e.InUse
}
