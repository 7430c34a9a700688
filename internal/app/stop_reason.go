package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopInputEOF   StopReason = "input_eof"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)
