// Package version reports which build of polyhost is running. It is printed
// by -version and logged at startup.
package version

import "runtime/debug"

// Version is set by release builds:
//
//	go build -ldflags "-X github.com/vsariola/polyhost/version.Version=$(git describe --dirty)" ./cmd/polyhost
var Version string

// Hash is the short VCS revision embedded by the go command, with a -dirty
// suffix for builds from a modified tree. Empty when there is no VCS info.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return revision(info.Settings)
}()

// VersionOrHash is Version when set, Hash otherwise.
var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	return Hash
}()

func revision(settings []debug.BuildSetting) string {
	var rev, dirty string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev == "" {
		return ""
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return rev + dirty
}
