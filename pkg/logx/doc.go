// Package logx configures castbot's structured logging.
//
// Logger is a small value type on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Telegram sink that forwards warnings to the admin chat
//     (min-level + rate limiting)
package logx
