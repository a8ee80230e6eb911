package failure

// Exit codes for seedkit commands. CI pipelines branch on these.
const (
	ExitSuccess            = 0  // Successful execution
	ExitFailure            = 1  // Generic fatal error (store down, I/O, unexpected)
	ExitCommandError       = 2  // Command usage error (bad flags or arguments)
	ExitVerificationFailed = 3  // Verification completed with status FAIL
	ExitValidationFailed   = 4  // Input/validation failure (including not found)
	ExitBlocked            = 5  // Security/policy violation
	ExitConcurrencyLimit   = 75 // Admission control rejected the command; retry later
)

func exitCodeForClass(c Class) int {
	switch c {
	case ClassSecurity:
		return ExitBlocked
	case ClassInput, ClassNotFound:
		return ExitValidationFailed
	case ClassConcurrency:
		return ExitConcurrencyLimit
	default:
		return ExitFailure
	}
}

// ExitCode maps any error to its exit code. nil maps to ExitSuccess and
// errors that are not *Error map to ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if fe, ok := As(err); ok {
		if fe.Code == CodeVerificationFailed {
			return ExitVerificationFailed
		}
		return fe.ExitCode()
	}
	return ExitFailure
}
