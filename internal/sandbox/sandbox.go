package sandbox

import (
	"github.com/taskrunner/gateway/internal/config"
)

// New assembles a Guard and its backend from the sandbox section of the
// loaded configuration: "container" picks the Docker backend, anything
// else uses the subprocess backend. With the container backend, an
// unreachable daemon makes Exec fail with ErrSandboxDisabled; there is
// no fallback to subprocess execution.
func New(cfg config.SandboxConfig) *Guard {
	var backend Backend
	// The tier-4 code-content scan is skipped for the container backend:
	// the container itself is the safety boundary, so the host-side scan
	// would be redundant with the isolation the runtime already provides.
	scanCode := true
	switch cfg.Backend {
	case "container":
		backend = NewDockerBackend(DockerConfig{
			Image:        cfg.Image,
			MemoryMB:     defaultInt(cfg.MemoryMB, 512),
			CPUs:         defaultFloat(cfg.CPUs, 1.0),
			PidsLimit:    defaultInt64(cfg.PidsLimit, 128),
			NetworkMode:  cfg.NetworkMode,
			ReadOnlyRoot: true,
			User:         "1000:1000",
		})
		scanCode = false
	default:
		backend = NewSubprocessBackend(cfg.OutputsDir)
	}

	return NewGuardWithCodeScan(backend, NewLiveOutputRegistry(200),
		defaultInt(cfg.ArtifactSanityThreshold, 20), cfg.OutputsDir,
		defaultInt(cfg.AutoInstallMaxFreeform, 2),
		defaultInt(cfg.AutoInstallMaxProject, 5),
		scanCode,
	)
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultInt64(v, fallback int64) int64 {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
