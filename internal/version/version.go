// Package version holds build-time version info injected via ldflags.
//
//	go build -ldflags "-X github.com/Tyrowin/chatrelay/internal/version.tag=v1.0.0
//	  -X github.com/Tyrowin/chatrelay/internal/version.commit=abc1234
//	  -X github.com/Tyrowin/chatrelay/internal/version.date=2026-01-01"
package version

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, the commit, or "dev" for local builds.
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}

// Full returns "tag (commit) built date" or a sensible fallback.
func Full() string {
	if tag != "" {
		return tag + " (" + commit + ") built " + date
	}
	if commit != "unknown" {
		return commit + " built " + date
	}
	return "dev"
}
