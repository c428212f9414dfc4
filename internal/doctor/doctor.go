// Package doctor runs readiness diagnostics for config, the IPC endpoint, and updates.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/rbright/showdialog/internal/config"
	"github.com/rbright/showdialog/internal/ipc"
	"github.com/rbright/showdialog/internal/update"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config, IPC, and update checks. params are the effective IPC
// params after CLI overrides.
func Run(ctx context.Context, cfg config.Loaded, params ipc.Params, current *semver.Version) Report {
	checks := []Check{checkConfig(cfg)}

	paramsCheck := checkParams(params)
	checks = append(checks, paramsCheck)
	if paramsCheck.Pass {
		checks = append(checks, checkEndpoint(ctx, params))
	}

	if manifest := strings.TrimSpace(cfg.Config.Update.Manifest); manifest != "" {
		checks = append(checks, checkManifest(current, manifest))
	}
	if file := strings.TrimSpace(cfg.Config.Update.File); file != "" {
		checks = append(checks, checkFile("update.file", file))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("no file at %q; using defaults", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 && cfg.Exists {
		message = fmt.Sprintf("%s (%d warning(s))", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

func checkParams(params ipc.Params) Check {
	if err := params.Validate(); err != nil {
		return Check{Name: "ipc.params", Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    "ipc.params",
		Pass:    true,
		Message: fmt.Sprintf("%s timeout=%gs buffer_size=%d", params.Address(), params.Timeout, params.BufferSize),
	}
}

// checkEndpoint is informational: a free port and a live server both pass.
func checkEndpoint(ctx context.Context, params ipc.Params) Check {
	alive, err := ipc.Probe(ctx, params)
	switch {
	case err != nil:
		return Check{Name: "ipc.endpoint", Pass: false, Message: err.Error()}
	case alive:
		return Check{Name: "ipc.endpoint", Pass: true, Message: fmt.Sprintf("server responding at %s", params.Address())}
	default:
		return Check{Name: "ipc.endpoint", Pass: true, Message: fmt.Sprintf("no server at %s", params.Address())}
	}
}

func checkManifest(current *semver.Version, path string) Check {
	result, err := update.CheckManifest(current, path)
	if err != nil {
		return Check{Name: "update.manifest", Pass: false, Message: err.Error()}
	}
	if !result.ManifestFound {
		return Check{Name: "update.manifest", Pass: false, Message: fmt.Sprintf("manifest not found: %s", path)}
	}
	if result.Needed {
		return Check{Name: "update.manifest", Pass: true, Message: fmt.Sprintf("update available: %s -> %s", current, result.Target)}
	}
	return Check{Name: "update.manifest", Pass: true, Message: fmt.Sprintf("up to date (latest %s)", result.Target)}
}

func checkFile(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is a directory", path)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found %s", path)}
}
