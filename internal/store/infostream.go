package store

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
)

// infoStream traces writer activity to an optional sink.
type infoStream struct {
	logger atomic.Pointer[slog.Logger]
}

func (s *infoStream) set(w io.Writer, backend Backend) {
	if w == nil {
		s.logger.Store(nil)
		return
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With(slog.String("backend", string(backend)))
	s.logger.Store(l)
}

func (s *infoStream) log(msg string, attrs ...slog.Attr) {
	l := s.logger.Load()
	if l == nil {
		return
	}
	l.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}
