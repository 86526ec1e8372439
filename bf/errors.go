package bf

import "errors"

// Load and run failures all wrap one of these sentinels, so callers can
// errors.Is on the kind and still get the offending position from the
// message. EOF on ',' is not an error (see Config.OnEOF).
var (
	// An unmatched '[' or ']' found at load time.
	ErrUnbalancedLoop = errors.New("unbalanced loop")
	// The data pointer would move below cell zero.
	ErrPointerUnderflow = errors.New("pointer underflow")
	// More instructions executed than Config.MaxSteps allows.
	ErrStepLimit = errors.New("step limit exceeded")
	// The tape would grow past Config.MaxCells.
	ErrTapeLimit = errors.New("tape limit exceeded")
)
