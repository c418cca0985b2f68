// Package logx configures eventcat's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller, colour only on a TTY)
//   - File output JSON-structured
//   - Level and sinks swappable at runtime (Service.Apply) during long runs
package logx
