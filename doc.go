// Package perflog is the logging half of an in-process observability layer:
// a concurrency-safe manager over rs/zerolog that builds its writers from a
// declarative Config and can swap that configuration while the process runs.
//
// Key features
//   - Declarative sinks (rotating files or the console) and dot-hierarchical
//     logical loggers that route records to them, with optional propagation
//     to the parent logger's sinks
//   - Two record formats carrying the same fields: a delimited line
//     ("ts - request_id - logger - LEVEL - message") and a JSON object
//   - Hot reconfiguration: the new writer set is built first, the active
//     state is swapped under a lock, and superseded writers are closed only
//     after in-flight events drain (bounded by DrainTimeoutMS)
//   - Size-based rotation with numbered backups; archival sinks with age
//     based retention and compression via lumberjack
//   - Sink failures stay inside the sink: they are counted and reported as a
//     warning, never returned to the caller
//   - A zap bridge so third-party components can log through the manager
//
// Typical usage
//
//	m := perflog.NewManager()
//	if err := m.Setup(perflog.DefaultConfig("logs")); err != nil { panic(err) }
//	defer m.Cleanup()
//
//	log := m.Logger("app.orders")
//	log.InfoWith().Ctx(ctx).Str("order_id", id).Msg("processed")
//
// The instrument and autoinstrument packages emit their execution records
// through a Manager.
package perflog
