package cli

// Exit codes reported by plan and apply. Success without changes is 0, a
// failure is 1, success with changes applied (or pending, for plan) is 2.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitChanges = 2
)

// ExitCodeError carries an explicit process exit code through cobra's error
// return path.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error { return e.Err }
