// SPDX-License-Identifier: Apache-2.0

package pkgmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/probe"
)

// Kind classifies the outcome of an install or remove request.
type Kind string

const (
	KindOK          Kind = "ok"
	KindUnsupported Kind = "unsupported"
	KindFailed      Kind = "failed"
)

// Result describes the outcome of a package operation. An Unsupported
// result carries the packages the user must install by hand; a Failed
// result says whether retrying could help.
type Result struct {
	Kind      Kind
	Retriable bool
	Packages  []string
	Message   string
}

// Err converts a non-OK result into an error for callers that do not
// distinguish the kinds.
func (r Result) Err() error {
	if r.Kind == KindOK {
		return nil
	}
	return fmt.Errorf("%s", r.Message)
}

// backend describes how to drive one distro family's package manager.
type backend struct {
	install func(pkgs []string) (string, []string)
	remove  func(pkgs []string) (string, []string)
	query   func(pkg string) (string, []string)
}

var backends = map[probe.DistroFamily]backend{
	probe.FamilyDebian: {
		install: func(pkgs []string) (string, []string) {
			return "apt-get", append([]string{"install", "-y"}, pkgs...)
		},
		remove: func(pkgs []string) (string, []string) {
			return "apt-get", append([]string{"remove", "-y"}, pkgs...)
		},
		query: func(pkg string) (string, []string) {
			return "dpkg", []string{"-s", pkg}
		},
	},
	probe.FamilyFedora: {
		install: func(pkgs []string) (string, []string) {
			return "dnf", append([]string{"install", "-y"}, pkgs...)
		},
		remove: func(pkgs []string) (string, []string) {
			return "dnf", append([]string{"remove", "-y"}, pkgs...)
		},
		query: func(pkg string) (string, []string) {
			return "rpm", []string{"-q", pkg}
		},
	},
	probe.FamilyArch: {
		install: func(pkgs []string) (string, []string) {
			return "pacman", append([]string{"-S", "--noconfirm", "--needed"}, pkgs...)
		},
		remove: func(pkgs []string) (string, []string) {
			return "pacman", append([]string{"-R", "--noconfirm"}, pkgs...)
		},
		query: func(pkg string) (string, []string) {
			return "pacman", []string{"-Qi", pkg}
		},
	},
	probe.FamilySuse: {
		install: func(pkgs []string) (string, []string) {
			return "zypper", append([]string{"--non-interactive", "install"}, pkgs...)
		},
		remove: func(pkgs []string) (string, []string) {
			return "zypper", append([]string{"--non-interactive", "remove"}, pkgs...)
		},
		query: func(pkg string) (string, []string) {
			return "rpm", []string{"-q", pkg}
		},
	},
}

// Patterns in package manager stderr that mean the repository simply
// does not have the package. Anything else is treated as transient.
var permanentFailurePatterns = []string{
	"unable to locate package",
	"no match for argument",
	"target not found",
	"not found in package names",
	"no provider of",
	"nothing provides",
}

// Installer resolves logical package sets to concrete package names
// for the detected distro family and drives its package manager.
type Installer struct {
	family probe.DistroFamily
	sets   map[string]map[string][]string
	runner cmdexec.Runner
}

// NewInstaller creates an installer for the given distro family and
// package set mapping (typically a fix's package_sets block).
func NewInstaller(family probe.DistroFamily, sets map[string]map[string][]string, verbose bool) *Installer {
	return &Installer{
		family: family,
		sets:   sets,
		runner: cmdexec.ExecRunner{Verbose: verbose},
	}
}

// WithRunner replaces the command runner, for tests.
func (i *Installer) WithRunner(r cmdexec.Runner) *Installer {
	i.runner = r
	return i
}

// Resolve returns the concrete package names for a logical set on the
// installer's distro family.
func (i *Installer) Resolve(setName string) ([]string, bool) {
	set, ok := i.sets[setName]
	if !ok {
		return nil, false
	}
	pkgs, ok := set[string(i.family)]
	return pkgs, ok
}

// Install installs a logical package set. On an unknown distro family
// the result is Unsupported and lists what the user must install by
// hand, mirroring the warn-and-continue behavior of manual setups.
func (i *Installer) Install(ctx context.Context, setName string) Result {
	return i.operate(ctx, setName, true)
}

// Remove removes a logical package set.
func (i *Installer) Remove(ctx context.Context, setName string) Result {
	return i.operate(ctx, setName, false)
}

func (i *Installer) operate(ctx context.Context, setName string, install bool) Result {
	set, ok := i.sets[setName]
	if !ok {
		return Result{
			Kind:      KindFailed,
			Retriable: false,
			Message:   fmt.Sprintf("unknown package set %q", setName),
		}
	}

	be, haveBackend := backends[i.family]
	pkgs, havePkgs := set[string(i.family)]
	if !haveBackend || !havePkgs {
		required := allPackages(set)
		return Result{
			Kind:     KindUnsupported,
			Packages: required,
			Message: fmt.Sprintf("no automated package management for distro family %q; please install manually: %s",
				i.family, strings.Join(required, ", ")),
		}
	}

	if len(pkgs) == 0 {
		return Result{Kind: KindOK}
	}

	var command string
	var args []string
	if install {
		command, args = be.install(pkgs)
	} else {
		command, args = be.remove(pkgs)
	}

	result, err := i.runner.Run(ctx, command, args)
	if err != nil {
		retriable := true
		combined := ""
		if result != nil {
			combined = strings.ToLower(string(result.Stderr) + string(result.Output))
		}
		for _, pattern := range permanentFailurePatterns {
			if strings.Contains(combined, pattern) {
				retriable = false
				break
			}
		}
		verb := "install"
		if !install {
			verb = "remove"
		}
		return Result{
			Kind:      KindFailed,
			Retriable: retriable,
			Packages:  pkgs,
			Message:   fmt.Sprintf("failed to %s package set %q: %v", verb, setName, err),
		}
	}

	return Result{Kind: KindOK, Packages: pkgs}
}

// IsInstalled queries the package manager for a single package.
func (i *Installer) IsInstalled(ctx context.Context, pkg string) (bool, error) {
	be, ok := backends[i.family]
	if !ok {
		return false, fmt.Errorf("no package query support for distro family %q", i.family)
	}

	command, args := be.query(pkg)
	_, err := i.runner.Run(ctx, command, args)
	if err != nil {
		// Query tools exit non-zero for "not installed"
		return false, nil
	}
	return true, nil
}

// SetInstalled reports whether every package of a set is installed.
// An unresolvable set on this distro family reports false.
func (i *Installer) SetInstalled(ctx context.Context, setName string) (bool, error) {
	pkgs, ok := i.Resolve(setName)
	if !ok {
		return false, nil
	}
	for _, pkg := range pkgs {
		installed, err := i.IsInstalled(ctx, pkg)
		if err != nil {
			return false, err
		}
		if !installed {
			return false, nil
		}
	}
	return true, nil
}

func allPackages(set map[string][]string) []string {
	seen := make(map[string]bool)
	var all []string
	for _, pkgs := range set {
		for _, pkg := range pkgs {
			if !seen[pkg] {
				seen[pkg] = true
				all = append(all, pkg)
			}
		}
	}
	sort.Strings(all)
	return all
}
