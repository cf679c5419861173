package services

// Executor runs fn on the session's mutation loop.
type Executor func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }
