// Package logx is cronsched's structured logging, a thin layer over zerolog.
//
// Events carry job, run and component fields through Job, Run and Component.
// A Service owns the console and file sinks; Loggers derived from it follow
// Service.Apply, so a config reload changes level and sinks without
// rebuilding the scheduler.
package logx
