package server

import "codeberg.org/mutker/vibesd/internal/errors"

const (
	ErrListen    = errors.ErrServerListen
	ErrShutdown  = errors.ErrShutdownFailed
	ErrSubscribe = errors.ErrorCode("server_subscribe_failed")
)
