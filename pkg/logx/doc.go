// Package logx is a thin structured-logging facade over zerolog.
//
// It exposes a small Logger with functional Field helpers so call sites stay
// readable:
//
//	log.Info("alarm fired", logx.Int64("id", ev.ID), logx.Time("at", ev.FireAt))
//
// The zero Logger value is a safe no-op, which keeps optional logging cheap
// in library code. The minimum level is process-wide and can be changed at
// runtime via SetLevel (used by the config hot-reload path).
package logx
