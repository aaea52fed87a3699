package llm

import (
	"errors"
	"net"

	pkgerrors "apexflow/pkg/errors"
)

// isRateLimited 判断是否为限流错误
func isRateLimited(err error) bool {
	return errors.Is(err, pkgerrors.ErrRateLimited)
}

func asNetError(err error, target *net.Error) bool {
	return errors.As(err, target)
}
