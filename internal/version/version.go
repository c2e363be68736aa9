// Package version carries build information stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/coinstream/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/coinstream/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	    ./cmd/streamer
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build description reported by /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the stamped build info.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
