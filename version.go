// Package querysynth holds build metadata for the query-synthesis
// orchestrator. The orchestrator itself lives in the orchestration package.
package querysynth

// Version information for QuerySynth
const (
	// Version is the current release
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
