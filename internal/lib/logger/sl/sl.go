// Package sl adapts standard errors into log/slog attributes.
package sl

import "log/slog"

// Err wraps an error as a slog attribute under the conventional "error" key.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
