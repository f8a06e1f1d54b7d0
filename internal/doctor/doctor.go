// Package doctor runs startup and operator diagnostic checks against a
// live agentcore deployment: config, database reachability, home directory
// permissions, and the health of the writer's fallback queue.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/events"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// FallbackDepth is implemented by *writer.Writer.
type FallbackDepth interface {
	FallbackDepth() int
	Dropped() int64
}

// TaskCount is implemented by *registry.Registry.
type TaskCount interface {
	Len() int
}

// Deps bundles the live components doctor checks probe. Any field may be
// nil; the corresponding check reports SKIP.
type Deps struct {
	Config   *config.Config
	Writer   FallbackDepth
	Registry TaskCount
}

// Run executes every diagnostic check and returns the aggregate result.
func Run(ctx context.Context, deps Deps, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	d.Results = append(d.Results,
		checkConfig(deps),
		checkPermissions(deps),
		checkDatabase(ctx, deps),
		checkFallbackQueue(deps),
		checkRegistry(deps),
	)
	return d
}

func checkConfig(deps Deps) CheckResult {
	if deps.Config == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "configuration not loaded"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("loaded, fingerprint=%s", deps.Config.Fingerprint())}
}

func checkPermissions(deps Deps) CheckResult {
	if deps.Config == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "config missing"}
	}
	home := deps.Config.HomeDir
	if home == "" {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "home dir unset"}
	}
	testFile := filepath.Join(home, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("home dir unwritable: %v", err)}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Permissions", Status: "PASS", Message: "home directory writable"}
}

func checkDatabase(ctx context.Context, deps Deps) CheckResult {
	if deps.Config == nil {
		return CheckResult{Name: "Database", Status: "SKIP", Message: "config missing"}
	}

	store, err := events.Open(deps.Config.DBPath)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("open failed: %v", err)}
	}
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return CheckResult{Name: "Database", Status: "PASS", Message: fmt.Sprintf("reachable at %s", deps.Config.DBPath)}
}

func checkFallbackQueue(deps Deps) CheckResult {
	if deps.Writer == nil {
		return CheckResult{Name: "Fallback Queue", Status: "SKIP", Message: "writer not wired"}
	}
	depth := deps.Writer.FallbackDepth()
	dropped := deps.Writer.Dropped()

	status := "PASS"
	switch {
	case dropped > 0:
		status = "WARN"
	case depth > 0:
		status = "WARN"
	}
	return CheckResult{
		Name:    "Fallback Queue",
		Status:  status,
		Message: fmt.Sprintf("depth=%d dropped_total=%d", depth, dropped),
	}
}

func checkRegistry(deps Deps) CheckResult {
	if deps.Registry == nil {
		return CheckResult{Name: "Task Registry", Status: "SKIP", Message: "registry not wired"}
	}
	return CheckResult{Name: "Task Registry", Status: "PASS", Message: fmt.Sprintf("tracking %d tasks", deps.Registry.Len())}
}
