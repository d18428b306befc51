package domain

import "errors"

var (
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrShutdownInProgress = errors.New("shutdown in progress")
	ErrNotLeader          = errors.New("not leader")
)
