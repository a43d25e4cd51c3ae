package main

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext 收到 SIGINT 或 SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
