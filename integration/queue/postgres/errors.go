package postgres

import "errors"

var (
	ErrPoolNil           = errors.New("queue storage: pool cannot be nil")
	ErrTaskNil           = errors.New("queue storage: task cannot be nil")
	ErrHealthcheckFailed = errors.New("queue storage: healthcheck failed")
)
