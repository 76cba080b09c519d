package internal

import (
	"strconv"
	"sync/atomic"
)

// Output modes for the builder. Seeded from linker flags at startup and
// overridden later by CLI flags, so reads and writes may race across
// goroutines.
var (
	quietMode   atomic.Bool
	debugMode   atomic.Bool
	verboseMode atomic.Bool
)

// Seeds the output modes from the raw linker-flag strings.
//
// rawQuiet, rawDebug, and rawVerbose are set via ldflags during the build.
// Unset or unparseable values leave the mode disabled.
func init() {
	if v, err := strconv.ParseBool(rawQuiet); err == nil {
		quietMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawDebug); err == nil {
		debugMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawVerbose); err == nil {
		verboseMode.Store(v)
	}
}

// Enables or disables quiet mode. Quiet suppresses informational output,
// keeping warnings and errors.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

// Reports whether quiet mode is enabled.
func IsQuiet() bool {
	return quietMode.Load()
}

// Enables or disables debug output.
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// Reports whether debug output is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Enables or disables verbose output. Verbose adds detail to log records
// without changing the level.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

// Reports whether verbose output is enabled.
func IsVerbose() bool {
	return verboseMode.Load()
}
