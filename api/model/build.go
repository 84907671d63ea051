package model

import "sort"

// Toolchain is the package manager used to install and build a project.
type Toolchain string

const (
	ToolchainNone Toolchain = "none"
	ToolchainNPM  Toolchain = "npm"
	ToolchainYarn Toolchain = "yarn"
	ToolchainPNPM Toolchain = "pnpm"
)

// BuildPlan is derived once per job from the workspace contents.
type BuildPlan struct {
	HasManifest  bool      `json:"hasManifest"`
	HasBuildStep bool      `json:"hasBuildStep"`
	Toolchain    Toolchain `json:"toolchain"`
	// OutputRoot is the deployed directory relative to the workspace,
	// "." when the source tree is published as is. Empty until the
	// build phase has finished.
	OutputRoot string `json:"outputRoot,omitempty"`
}

// ArtifactSet maps an object key (slash separated, relative to the
// output root) to the absolute path of the local file.
type ArtifactSet map[string]string

// Keys returns the object keys in lexical order.
func (a ArtifactSet) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
