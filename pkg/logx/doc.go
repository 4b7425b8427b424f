// Package logx wraps zerolog behind a small structured-logging facade.
//
// Services take a logx.Logger value; the zero value and Nop() are safe
// no-op loggers, which keeps test wiring free of nil checks. The Service
// owns the configured sinks (console and optional file) and can swap
// levels/outputs at runtime via Apply() without invalidating loggers that
// were handed out earlier.
package logx
