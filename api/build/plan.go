package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quickdeploy/api/model"
)

const ManifestFile = "package.json"

// lockfiles is checked in order; the first present decides the
// toolchain. npm is the fallback.
var lockfiles = []struct {
	file      string
	toolchain model.Toolchain
}{
	{"yarn.lock", model.ToolchainYarn},
	{"pnpm-lock.yaml", model.ToolchainPNPM},
}

// OutputDirs are the conventional build output directories, in search
// order.
var OutputDirs = []string{"build", "dist", "out", "public"}

type manifest struct {
	Scripts map[string]string `json:"scripts"`
}

// Plan inspects the workspace root and decides whether and how to build.
func Plan(dir string) (model.BuildPlan, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return model.BuildPlan{Toolchain: model.ToolchainNone}, nil
	}
	if err != nil {
		return model.BuildPlan{}, fmt.Errorf("read %s: %w", ManifestFile, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return model.BuildPlan{}, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}

	plan := model.BuildPlan{
		HasManifest:  true,
		HasBuildStep: strings.TrimSpace(m.Scripts["build"]) != "",
		Toolchain:    selectToolchain(dir),
	}
	return plan, nil
}

func selectToolchain(dir string) model.Toolchain {
	for _, lf := range lockfiles {
		if exists(filepath.Join(dir, lf.file)) {
			return lf.toolchain
		}
	}
	return model.ToolchainNPM
}

// findOutput returns the first conventional output directory present
// under dir.
func findOutput(dir string) (string, bool) {
	for _, name := range OutputDirs {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err == nil && fi.IsDir() {
			return name, true
		}
	}
	return "", false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
