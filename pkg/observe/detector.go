// Package observe dispatches issue detectors over a source tree and
// aggregates their findings into a Metrics document for the control
// plane. Detectors declare their scan capability up front; the
// dispatcher branches on the declared tag, never by probing.
package observe

import (
	"context"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

// Capability states how a detector wants to be driven.
type Capability string

const (
	// CapabilityWorkspace detectors scan the whole tree in one call.
	CapabilityWorkspace Capability = "workspace-scan"
	// CapabilityPerFile detectors are invoked once per candidate file.
	CapabilityPerFile Capability = "per-file-scan"
)

// Detector is the common surface every detector exposes. The declared
// Capability decides which of the scanner interfaces the dispatcher
// expects the detector to also satisfy.
type Detector interface {
	Name() string
	Category() string
	Capability() Capability
}

// WorkspaceScanner is implemented by CapabilityWorkspace detectors.
type WorkspaceScanner interface {
	Detector
	ScanWorkspace(ctx context.Context, root string) ([]contracts.IssueDetail, error)
}

// FileScanner is implemented by CapabilityPerFile detectors.
type FileScanner interface {
	Detector
	ScanFile(ctx context.Context, path string) ([]contracts.IssueDetail, error)
}
