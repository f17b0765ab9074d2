// Package logx provides the process-wide structured logger.
//
// It wraps zerolog behind a small Logger value that stays "live" across
// runtime config changes: Service.Apply swaps sinks and levels without
// invalidating loggers already handed out.
package logx
