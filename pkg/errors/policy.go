package errors

// Policy decides whether a failed remote call aborts the surrounding operation.
type Policy int

const (
	// PolicyFatal propagates the error to the caller.
	PolicyFatal Policy = iota

	// PolicyBestEffort reports the error and continues.
	PolicyBestEffort
)

func (p Policy) String() string {
	switch p {
	case PolicyFatal:
		return "fatal"
	case PolicyBestEffort:
		return "best-effort"
	default:
		return "unknown"
	}
}

// Handle applies the policy to err. A fatal policy returns err unchanged. A
// best-effort policy passes err to onIgnored (when non-nil) and returns nil.
func (p Policy) Handle(err error, onIgnored func(error)) error {
	if err == nil {
		return nil
	}
	if p == PolicyBestEffort {
		if onIgnored != nil {
			onIgnored(err)
		}
		return nil
	}
	return err
}
