// Package logx configures clistbot's structured logging.
//
// A thin wrapper (logx.Logger) on top of zerolog keeps:
//   - console output readable (short timestamp and caller)
//   - file output JSON-structured
//   - an optional Telegram sink gated by level and a rate limiter
package logx
