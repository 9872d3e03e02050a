// Package logger provides the process-wide zap logger with context scoping.
//
// Init is called once from main; everything else reaches the logger through
// L() or From(ctx). The HTTP logging middleware stores a request-scoped logger
// (request_id, method, path) in the context, so services can log with
// logger.From(ctx) and inherit those fields.
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("login"))
//	log.Info("player logged in", logger.PlayerID(id))
package logger
