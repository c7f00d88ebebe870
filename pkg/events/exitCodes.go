package events

const (
	// ExitCodeSuccess is the exit code for a successful run.
	ExitCodeSuccess = iota
	ExitCodeGenericFailure
	ExitCodeTimeoutFailure
	// ExitCodeActionFault is used when a device answered an action call
	// with a UPnP fault.
	ExitCodeActionFault
)
