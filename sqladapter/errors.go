package sqladapter

import "errors"

// errors
var (
	ErrDBClosed          = errors.New("sqladapter: db is closed")
	ErrMissingDriverName = errors.New("sqladapter: driver name is a mandatory config")
	ErrMissingURL        = errors.New("sqladapter: url is a mandatory config")
	ErrDriverNotFound    = errors.New("sqladapter: driver not registered")
	ErrBadConnection     = errors.New("sqladapter: bad connection")
)
