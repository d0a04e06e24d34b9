package perflog

const emptyString = ""

// Logical logger names used by the instrumentation packages.
const (
	LoggerPerformance = "performance"
	LoggerMemory      = "memory"
	LoggerResources   = "resources"
	LoggerErrors      = "errors"
	LoggerApp         = "app"
)

// Record formats.
const (
	FormatLine       = "line"
	FormatStructured = "structured"
)

// Field names of every record, in both formats.
const (
	FieldTimestamp  = "timestamp"
	FieldLevel      = "level"
	FieldLogger     = "logger"
	FieldMessage    = "message"
	FieldRequestID  = "request_id"
	FieldModule     = "module"
	FieldFunction   = "function"
	FieldLine       = "line"
	FieldThread     = "thread"
	FieldThreadName = "thread_name"
	FieldProcess    = "process"
)

// TimestampLayout is the record timestamp layout (YYYY-MM-DD HH:MM:SS).
const TimestampLayout = "2006-01-02 15:04:05"

const (
	defaultMaxBytes       int64 = 10 * 1024 * 1024
	defaultBackupCount          = 5
	defaultDrainTimeoutMS       = 2000
	defaultEncoding             = "utf-8"
)

const (
	errMsgNilConfig      = "Logging config is nil."
	errMsgNilManager     = "Logging manager is nil."
	errMsgConfigInvalid  = "Logging configuration is invalid."
	errMsgUnknownSink    = "Logging configuration references an unknown sink:"
	errMsgSinkOpen       = "Logging sink could not be opened:"
	errMsgConfigRead     = "Logging configuration file could not be read."
	errMsgConfigParse    = "Logging configuration file could not be parsed."
	errMsgSinkClose      = "Logging sinks could not be closed cleanly."
	warnMsgAlreadySetup  = "Logging manager is already configured; ignoring Setup."
	warnMsgDrainTimeout  = "Logging drain timeout exceeded; closing superseded writers."
	warnMsgSinkWriteFail = "Logging sink write failed."
)
