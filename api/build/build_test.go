package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quickdeploy/api/model"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

const buildManifest = `{"name":"site","scripts":{"build":"vite build"}}`

func TestPlan(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  model.BuildPlan
	}{
		{
			"no manifest",
			map[string]string{"index.html": "x"},
			model.BuildPlan{Toolchain: model.ToolchainNone},
		},
		{
			"manifest without build script",
			map[string]string{"package.json": `{"scripts":{"test":"jest"}}`},
			model.BuildPlan{HasManifest: true, Toolchain: model.ToolchainNPM},
		},
		{
			"blank build script",
			map[string]string{"package.json": `{"scripts":{"build":"  "}}`},
			model.BuildPlan{HasManifest: true, Toolchain: model.ToolchainNPM},
		},
		{
			"npm default",
			map[string]string{"package.json": buildManifest, "package-lock.json": "{}"},
			model.BuildPlan{HasManifest: true, HasBuildStep: true, Toolchain: model.ToolchainNPM},
		},
		{
			"yarn",
			map[string]string{"package.json": buildManifest, "yarn.lock": ""},
			model.BuildPlan{HasManifest: true, HasBuildStep: true, Toolchain: model.ToolchainYarn},
		},
		{
			"pnpm",
			map[string]string{"package.json": buildManifest, "pnpm-lock.yaml": ""},
			model.BuildPlan{HasManifest: true, HasBuildStep: true, Toolchain: model.ToolchainPNPM},
		},
		{
			"yarn wins over pnpm",
			map[string]string{"package.json": buildManifest, "pnpm-lock.yaml": "", "yarn.lock": "", "package-lock.json": ""},
			model.BuildPlan{HasManifest: true, HasBuildStep: true, Toolchain: model.ToolchainYarn},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)
			got, err := Plan(dir)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if got != tt.want {
				t.Errorf("Plan = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlanDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"package.json": buildManifest, "yarn.lock": "", "pnpm-lock.yaml": ""})
	first, _ := Plan(dir)
	for i := 0; i < 20; i++ {
		got, _ := Plan(dir)
		if got != first {
			t.Fatalf("run %d: Plan = %+v, first = %+v", i, got, first)
		}
	}
}

func TestPlanInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"package.json": "{not json"})
	if _, err := Plan(dir); err == nil {
		t.Error("expected parse error")
	}
}

// fakeCommander records invocations and optionally creates files.
type fakeCommander struct {
	calls   []string
	onBuild func(dir string)
	fail    string
	block   bool
}

func (f *fakeCommander) Run(ctx context.Context, dir string, out io.Writer, name string, args ...string) error {
	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)
	fmt.Fprintf(out, "$ %s\n", line)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if line == f.fail {
		return errors.New("exit status 1")
	}
	if strings.HasSuffix(line, "run build") && f.onBuild != nil {
		f.onBuild(dir)
	}
	return nil
}

func TestExecuteNoBuildStep(t *testing.T) {
	dir := t.TempDir()
	cmd := &fakeCommander{}
	r := &Runner{Cmd: cmd}
	root, err := r.Execute(context.Background(), dir, model.BuildPlan{HasManifest: true, Toolchain: model.ToolchainNPM}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if root != dir {
		t.Errorf("root = %s, want workspace root", root)
	}
	if len(cmd.calls) != 0 {
		t.Errorf("ran %v, want nothing", cmd.calls)
	}
}

func TestExecuteToolchainCommands(t *testing.T) {
	tests := []struct {
		tc   model.Toolchain
		want []string
	}{
		{model.ToolchainNPM, []string{"npm ci", "npm run build"}},
		{model.ToolchainYarn, []string{"yarn install", "yarn run build"}},
		{model.ToolchainPNPM, []string{"pnpm install --shamefully-hoist", "pnpm run build"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.tc), func(t *testing.T) {
			dir := t.TempDir()
			cmd := &fakeCommander{onBuild: func(d string) { os.MkdirAll(filepath.Join(d, "dist"), 0o755) }}
			r := &Runner{Cmd: cmd}

			var out strings.Builder
			root, err := r.Execute(context.Background(), dir, model.BuildPlan{HasManifest: true, HasBuildStep: true, Toolchain: tt.tc}, &out)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if root != filepath.Join(dir, "dist") {
				t.Errorf("root = %s", root)
			}
			if strings.Join(cmd.calls, "|") != strings.Join(tt.want, "|") {
				t.Errorf("calls = %v, want %v", cmd.calls, tt.want)
			}
			if !strings.Contains(out.String(), "run build") {
				t.Errorf("output not forwarded: %q", out.String())
			}
		})
	}
}

func TestExecuteOutputDirPriority(t *testing.T) {
	dir := t.TempDir()
	cmd := &fakeCommander{onBuild: func(d string) {
		for _, name := range []string{"public", "out", "dist"} {
			os.MkdirAll(filepath.Join(d, name), 0o755)
		}
	}}
	r := &Runner{Cmd: cmd}
	root, err := r.Execute(context.Background(), dir, model.BuildPlan{HasBuildStep: true, Toolchain: model.ToolchainNPM}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(root) != "dist" {
		t.Errorf("root = %s, want dist (first in search order)", root)
	}
}

func TestExecuteNoOutputDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"build.txt": "not a dir"})
	r := &Runner{Cmd: &fakeCommander{}}
	_, err := r.Execute(context.Background(), dir, model.BuildPlan{HasBuildStep: true, Toolchain: model.ToolchainNPM}, nil)
	if !errors.Is(err, ErrNoOutputDir) {
		t.Errorf("err = %v, want ErrNoOutputDir", err)
	}
}

func TestExecuteInstallFailureStops(t *testing.T) {
	dir := t.TempDir()
	cmd := &fakeCommander{fail: "npm ci"}
	r := &Runner{Cmd: cmd}
	_, err := r.Execute(context.Background(), dir, model.BuildPlan{HasBuildStep: true, Toolchain: model.ToolchainNPM}, nil)
	if err == nil || !strings.Contains(err.Error(), "npm ci") {
		t.Errorf("err = %v", err)
	}
	if len(cmd.calls) != 1 {
		t.Errorf("calls = %v, build should not run after failed install", cmd.calls)
	}
}

func TestExecuteTimeout(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Cmd: &fakeCommander{block: true}, Timeout: 20 * time.Millisecond}
	_, err := r.Execute(context.Background(), dir, model.BuildPlan{HasBuildStep: true, Toolchain: model.ToolchainYarn}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestExecCommander(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	var out strings.Builder
	err := ExecCommander{}.Run(context.Background(), t.TempDir(), &out, "/bin/sh", "-c", "echo hello; exit 3")
	if err == nil {
		t.Error("expected non-zero exit error")
	}
	if !strings.Contains(out.String(), "hello") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := NewLineWriter(func(l string) { lines = append(lines, l) })
	fmt.Fprint(w, "one\r\ntw")
	fmt.Fprint(w, "o\nthree")
	w.Flush()
	want := []string{"one", "two", "three"}
	if strings.Join(lines, ",") != strings.Join(want, ",") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}
