package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode is how the engine gets launched.
type Mode string

const (
	// ModeBinary runs a compiled engine executable directly.
	ModeBinary Mode = "binary"
	// ModeRuntime runs the engine's entry script through a language runtime.
	ModeRuntime Mode = "runtime"
)

// Target is a resolved launch target. It is recomputed for every invocation.
type Target struct {
	Mode       Mode   `json:"mode"`
	Binary     string `json:"binary,omitempty"`
	Runtime    string `json:"runtime,omitempty"`
	ProjectDir string `json:"project_dir,omitempty"`
	Script     string `json:"script,omitempty"`
}

// Command returns the program to execute and its full argument list for the
// given engine arguments. Runtime mode prefixes the project, startup and
// script arguments the runtime expects.
func (t Target) Command(args []string) (string, []string) {
	if t.Mode == ModeRuntime {
		argv := make([]string, 0, len(args)+3)
		argv = append(argv, "--project="+t.ProjectDir, "--startup-file=no", t.Script)
		return t.Runtime, append(argv, args...)
	}
	return t.Binary, append([]string(nil), args...)
}

// Argv is Command flattened into a single slice, for display and history.
func (t Target) Argv(args []string) []string {
	name, rest := t.Command(args)
	return append([]string{name}, rest...)
}

// ResolverConfig controls where the engine is looked for.
type ResolverConfig struct {
	// Path pins the engine to one file. A path ending in the entry script's
	// extension is launched through the runtime.
	Path string

	Name              string
	ResourceDir       string
	BinaryDir         string // relative to ResourceDir unless absolute
	SidecarDir        string // relative to ResourceDir unless absolute
	EntryScript       string
	Runtime           string
	RuntimeCandidates []string // "~/" expands to the home directory
}

// Resolver locates the engine. It holds no state between calls so an engine
// installed while the shell is running is picked up by the next invocation.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver returns a Resolver with defaults applied to unset fields.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Name == "" {
		cfg.Name = "friedman-cli"
	}
	if cfg.BinaryDir == "" {
		cfg.BinaryDir = "binaries"
	}
	if cfg.SidecarDir == "" {
		cfg.SidecarDir = "sidecar"
	}
	if cfg.EntryScript == "" {
		cfg.EntryScript = "main.jl"
	}
	if cfg.Runtime == "" {
		cfg.Runtime = "julia"
	}
	if cfg.RuntimeCandidates == nil {
		cfg.RuntimeCandidates = DefaultRuntimeCandidates(cfg.Runtime)
	}
	return &Resolver{cfg: cfg}
}

// DefaultRuntimeCandidates lists the well-known install locations of the
// runtime, checked before falling back to a PATH lookup.
func DefaultRuntimeCandidates(runtime string) []string {
	return []string{
		"~/.juliaup/bin/" + runtime,
		"/opt/homebrew/bin/" + runtime,
		"/usr/local/bin/" + runtime,
		"~/.juliaup/bin/" + runtime + ".exe",
	}
}

// Resolve finds the engine. Order: explicit path, the resource directory,
// the bundled binaries directory, then the entry script under the sidecar
// directory run by the first runtime candidate that exists.
func (r *Resolver) Resolve() (Target, error) {
	if r.cfg.Path != "" {
		return r.resolvePinned()
	}

	var searched []string
	for _, dir := range []string{r.cfg.ResourceDir, r.under(r.cfg.BinaryDir)} {
		if dir == "" {
			continue
		}
		for _, name := range r.binaryNames() {
			p := filepath.Join(dir, name)
			searched = append(searched, p)
			if isFile(p) {
				return Target{Mode: ModeBinary, Binary: p}, nil
			}
		}
	}

	if sidecar := r.under(r.cfg.SidecarDir); sidecar != "" {
		script := filepath.Join(sidecar, r.cfg.EntryScript)
		searched = append(searched, script)
		if isFile(script) {
			return Target{
				Mode:       ModeRuntime,
				Runtime:    r.findRuntime(),
				ProjectDir: sidecar,
				Script:     script,
			}, nil
		}
	}

	return Target{}, &Error{
		Kind: KindNotFound,
		Message: fmt.Sprintf("%s binary not found (searched %s). For dev mode, run ./scripts/setup-sidecar.sh first",
			r.cfg.Name, strings.Join(searched, ", ")),
	}
}

func (r *Resolver) resolvePinned() (Target, error) {
	p := expandHome(r.cfg.Path)
	if !isFile(p) {
		return Target{}, &Error{Kind: KindNotFound, Message: fmt.Sprintf("configured engine %s does not exist", p)}
	}
	if filepath.Ext(p) == filepath.Ext(r.cfg.EntryScript) {
		return Target{
			Mode:       ModeRuntime,
			Runtime:    r.findRuntime(),
			ProjectDir: filepath.Dir(p),
			Script:     p,
		}, nil
	}
	return Target{Mode: ModeBinary, Binary: p}, nil
}

func (r *Resolver) binaryNames() []string {
	if strings.HasSuffix(r.cfg.Name, ".exe") {
		return []string{r.cfg.Name}
	}
	return []string{r.cfg.Name, r.cfg.Name + ".exe"}
}

func (r *Resolver) under(dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	if r.cfg.ResourceDir == "" {
		return ""
	}
	return filepath.Join(r.cfg.ResourceDir, dir)
}

// findRuntime returns the first existing candidate, or the bare runtime name
// so the OS resolves it from PATH at spawn time.
func (r *Resolver) findRuntime() string {
	for _, c := range r.cfg.RuntimeCandidates {
		if p := expandHome(c); isFile(p) {
			return p
		}
	}
	return r.cfg.Runtime
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
