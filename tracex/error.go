package tracex

import (
	"errors"
	"fmt"

	"github.com/imattdu/orbit-apm/errorx"
)

// errorType 取最内层错误的类型名；errorx 错误带上 code
func errorType(err error) string {
	if e, ok := errorx.From(err); ok {
		return fmt.Sprintf("errorx.Error[%d]", e.Code.Code)
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return fmt.Sprintf("%T", err)
}
