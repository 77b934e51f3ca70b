// Package status defines the process exit codes shared by the harness,
// the trap handler, and the test runner. The values are compatible with
// the rv64-emu test infrastructure.
package status

const (
	Success             = 0
	AbnormalTermination = 1
	HelpDisplayed       = 2
	InitializationError = 3
	UnitTestFailed      = 5
	NotSupported        = 6
	SigHandlerFailure   = 7
	FramebufferError    = 8
)
