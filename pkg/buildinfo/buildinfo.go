// Package buildinfo reports the version launchbot was built from.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/launchbot/pkg/buildinfo.Version=v1.2.0
// -X github.com/otherjamesbrown/launchbot/pkg/buildinfo.Commit=3f9c2e1
// -X github.com/otherjamesbrown/launchbot/pkg/buildinfo.BuildTime=2026-09-30T14:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var startedAt = time.Now()

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info holds build information for a service.
type Info struct {
	ServiceName   string `json:"service_name"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildTime     string `json:"build_time"`
	GoVersion     string `json:"go_version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Get returns build info for the named service. When Commit or BuildTime
// were not set by ldflags they fall back to the VCS stamp in the binary.
func Get(serviceName string) Info {
	info := Info{
		ServiceName:   serviceName,
		Version:       Version,
		Commit:        Commit,
		BuildTime:     BuildTime,
		GoVersion:     runtime.Version(),
		UptimeSeconds: int64(Uptime().Seconds()),
	}

	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "unknown" && len(s.Value) >= 7 {
					info.Commit = s.Value[:7]
				}
			case "vcs.time":
				if info.BuildTime == "unknown" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}

// Uptime is how long the process has been running.
func Uptime() time.Duration {
	return time.Since(startedAt)
}

// String returns a one-liner like "v1.2.0 (3f9c2e1, 2026-09-30T14:00:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler returns an HTTP handler that responds with build info JSON.
func Handler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get(serviceName))
	}
}
