package connection

import "errors"

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
)

type Conn interface {
	Close() error
}
