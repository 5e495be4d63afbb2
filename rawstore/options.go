package rawstore

import "log/slog"

// Option configures a Store at Open time.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger installs log as the destination for this store's debug
// output, in place of slog.Default(). Pair with devlog.Tinted for the
// colorized console handler used during development and in tests.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func resolveOptions(opts []Option) *options {
	o := &options{log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
