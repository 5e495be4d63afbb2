// Package devlog provides the colorized console handler a host process
// wires into the engine's stores for development and test runs, the way
// the teacher's cmd binaries would configure logging at startup.
package devlog

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// Tinted returns a logger backed by a colorized, human-readable handler
// writing to w. Pass its result to objectstore.WithLogger or
// rawstore.WithLogger; production hosts that want plain JSON/text
// logging can ignore this package and rely on the stores' slog.Default
// fallback instead.
func Tinted(w io.Writer) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
	}))
}
