package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
)

// Version information injected from main via SetVersionInfo
var (
	AppName      = ""
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo sets the version information for the handler
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppName overrides the reported binary name
func SetAppName(name string) {
	AppName = name
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Engine       EngineInfo  `json:"engine"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// EngineInfo reports the state document version and the hard caps the
// scheduler applies over stored settings, so clients can size requests.
type EngineInfo struct {
	SchemaVersion        int `json:"schema_version"`
	MaxRequestKeys       int `json:"max_request_keys"`
	MaxImportEntries     int `json:"max_import_entries"`
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
	MaxConcurrency       int `json:"max_concurrency"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	version := crucible.GetVersion()

	writeJSON(w, VersionResponse{
		App: AppInfo{
			Name:      appName(),
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Engine: EngineInfo{
			SchemaVersion:        core.SchemaVersion,
			MaxRequestKeys:       engine.MaxRequestKeys,
			MaxImportEntries:     core.MaxImportEntries,
			MaxRequestsPerMinute: engine.MaxRequestsPerMinute,
			MaxConcurrency:       engine.MaxConcurrency,
		},
		Dependencies: DepInfo{
			Gofulmen: version.Gofulmen,
			Crucible: version.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	})
}

func appName() string {
	if AppName != "" {
		return AppName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "unknown"
}
