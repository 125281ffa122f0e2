// Package buildinfo exposes the values stamped in by the linker, e.g.
//
//	-ldflags "-X github.com/coretrace/coretrace/pkg/buildinfo.version=v0.3.0"
//
// Unstamped builds fall back to the module and VCS data the go command
// embeds.
package buildinfo

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

var (
	version   string
	commit    string
	branch    string
	buildTime string
)

var embedded = sync.OnceValue(func() map[string]string {
	out := map[string]string{}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		out["version"] = v
	}
	for _, s := range info.Settings {
		out[s.Key] = s.Value
	}
	return out
})

func pick(stamped, key, fallback string) string {
	if stamped != "" {
		return stamped
	}
	if v := embedded()[key]; v != "" {
		return v
	}
	return fallback
}

func Version() string   { return pick(version, "version", "dev") }
func Commit() string    { return pick(commit, "vcs.revision", "unknown") }
func Branch() string    { return pick(branch, "", "unknown") }
func BuildTime() string { return pick(buildTime, "vcs.time", "unknown") }

// Fields is the build identity as log fields.
func Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", Version()),
		zap.String("commit", Commit()),
		zap.String("branch", Branch()),
		zap.String("built", BuildTime()),
	}
}
