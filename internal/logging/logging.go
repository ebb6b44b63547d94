// Package logging sets up structured logging in a uniform way.
package logging

import (
	"os"

	"github.com/go-kit/kit/log"
)

// Provided by ldflags during build
var (
	release string
	commit  string
	branch  string
)

// Init returns a logger configured with common settings like source
// code locations. It should be called as early as possible in main(),
// before any application-specific logging occurs, so the startup
// record is the first line the process emits.
func Init() log.Logger {
	l := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))

	logger := log.With(l, "caller", log.DefaultCaller)

	logger.Log("release", release, "commit", commit, "git-branch", branch, "msg", "Starting")

	return logger
}
