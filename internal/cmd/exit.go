package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// exitFailure is used when an error carries no specific exit code.
const exitFailure = 1

// exitCodeError carries the process exit code for Execute.
type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.message, e.code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, message: message, err: err}
}

// ExitWithCode logs and terminates the process immediately. Commands that
// return errors should prefer exitError.
func ExitWithCode(log *zap.Logger, code int, message string, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	log.Error(message, zap.Error(err), zap.Int("exit_code", code))
	_ = log.Sync()
	os.Exit(code)
}
