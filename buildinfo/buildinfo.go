package buildinfo

import "fmt"

var (
	// GitCommit is set by govvv at build time.
	GitCommit = "n/a"
	// GitBranch  is set by govvv at build time.
	GitBranch = "n/a"
	// GitState  is set by govvv at build time.
	GitState = "n/a"
	// GitSummary is set by govvv at build time.
	GitSummary = "n/a"
	// BuildDate  is set by govvv at build time.
	BuildDate = "n/a"
	// Version  is set by govvv at build time.
	Version = "n/a"
)

// Summary is a snapshot of the binary's build provenance.
type Summary struct {
	Version    string
	GitCommit  string
	GitBranch  string
	GitState   string
	GitSummary string
	BuildDate  string
}

// String renders the summary for a single startup log line.
func (s Summary) String() string {
	return fmt.Sprintf("%s (%s@%s, %s)", s.Version, s.GitCommit, s.GitBranch, s.BuildDate)
}

// GetSummary returns a summary of git information.
func GetSummary() Summary {
	return Summary{
		Version:    Version,
		GitCommit:  GitCommit,
		GitBranch:  GitBranch,
		GitState:   GitState,
		GitSummary: GitSummary,
		BuildDate:  BuildDate,
	}
}
