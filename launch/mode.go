package launch

import (
	"os"
	"strings"
)

// Mode selects how the backend server is launched.
type Mode string

const (
	// ModeDevelopment runs the backend's dev task from the source checkout.
	ModeDevelopment Mode = "development"
	// ModeProduction runs the companion binary shipped next to the host.
	ModeProduction Mode = "production"
)

// Environment is everything mode detection looks at. CurrentEnvironment
// builds the real one; tests construct it directly.
type Environment struct {
	LookupEnv func(string) (string, bool)

	// Executable is the host's own executable path. Empty if unknown.
	Executable string

	// ExecutableExt is the extension this platform requires on executables,
	// ".exe" on Windows and empty elsewhere.
	ExecutableExt string

	DevEnvVars []string
}

func CurrentEnvironment(devEnvVars []string, executableExt string) Environment {
	exe, err := os.Executable()
	if err != nil {
		exe = ""
	}
	return Environment{
		LookupEnv:     os.LookupEnv,
		Executable:    exe,
		ExecutableExt: executableExt,
		DevEnvVars:    devEnvVars,
	}
}

// DetectMode reports development when any of the dev env vars is set, even
// to an empty value, or when the platform requires an executable extension and the running
// executable lacks it (an unpackaged build). It never fails.
func DetectMode(env Environment) Mode {
	if env.LookupEnv != nil {
		for _, name := range env.DevEnvVars {
			if _, ok := env.LookupEnv(name); ok {
				return ModeDevelopment
			}
		}
	}

	if env.ExecutableExt != "" && env.Executable != "" &&
		!strings.HasSuffix(strings.ToLower(env.Executable), strings.ToLower(env.ExecutableExt)) {
		return ModeDevelopment
	}

	return ModeProduction
}
