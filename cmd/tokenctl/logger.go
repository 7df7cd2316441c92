package main

import (
	"io"

	"github.com/goliatone/go-credentials/core"
	glog "github.com/goliatone/go-logger/glog"
)

func newCLILogger(out io.Writer, level string) core.Logger {
	return glog.NewLogger(
		glog.WithName("tokenctl"),
		glog.WithLoggerTypeConsole(),
		glog.WithLevel(level),
		glog.WithWriter(out),
	)
}
