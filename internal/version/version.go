package version

import (
	"runtime"

	"github.com/gosuri/uitable"
)

// Build information, overridden at link time via -ldflags "-X".
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// BuildInfo is the JSON form reported by the server and the CLI.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuiltAt:   BuiltAt,
		GoVersion: runtime.Version(),
	}
}

// Info returns the short version string.
func Info() string {
	return Version
}

// FullInfo returns complete build information on one line.
func FullInfo() string {
	return "version=" + Version + " commit=" + Commit + " built_at=" + BuiltAt + " go=" + runtime.Version()
}

// Text renders the build information as an aligned table.
func (info BuildInfo) Text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("version:", info.Version)
	table.AddRow("commit:", info.Commit)
	table.AddRow("builtAt:", info.BuiltAt)
	table.AddRow("goVersion:", info.GoVersion)
	return table.String()
}
