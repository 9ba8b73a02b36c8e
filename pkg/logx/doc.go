// Package logx configures agentcron's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional alert sink forwarding warn+ events to the delivery pipeline
//     (min-level + rate limiting)
package logx
