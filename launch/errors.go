package launch

import "strings"

// ErrorKind identifies which launch step failed.
type ErrorKind string

const (
	// KindPathResolution means the project root or executable could not be
	// determined.
	KindPathResolution ErrorKind = "path_resolution"
	// KindSpawn means the OS refused to start the resolved command.
	KindSpawn ErrorKind = "spawn"
)

// LaunchError is returned by Launcher for every failure. Hint carries
// actionable guidance for the user.
type LaunchError struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Err     error
}

func (e *LaunchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
