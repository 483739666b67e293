// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DistroFamily is the closed set of package-manager families the
// orchestrator knows how to drive.
type DistroFamily string

const (
	FamilyDebian  DistroFamily = "debian"
	FamilyFedora  DistroFamily = "fedora"
	FamilyArch    DistroFamily = "arch"
	FamilySuse    DistroFamily = "suse"
	FamilyUnknown DistroFamily = "unknown"
)

// Prober answers read-only questions about the running system. Absence
// of a device, module, or file is reported as a value, never an error;
// errors are reserved for I/O failures reading the probing mechanism
// itself.
type Prober struct {
	// Root is prefixed to every path the prober reads. "/" in
	// production, a temp directory in tests.
	root string
}

// New creates a prober reading the real system root.
func New() *Prober {
	return &Prober{root: "/"}
}

// NewWithRoot creates a prober reading under an alternate root.
func NewWithRoot(root string) *Prober {
	return &Prober{root: root}
}

func (p *Prober) path(elem ...string) string {
	return filepath.Join(append([]string{p.root}, elem...)...)
}

// OSRelease parses the os-release descriptor into a key/value map.
func (p *Prober) OSRelease() (map[string]string, error) {
	f, err := os.Open(p.path("etc/os-release"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("error reading os-release: %w", err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning os-release: %w", err)
	}

	return values, nil
}

// DetectDistroFamily maps the os-release ID/ID_LIKE fields onto a
// distro family. An unrecognized or missing descriptor yields
// FamilyUnknown, which is a valid non-fatal result.
func (p *Prober) DetectDistroFamily() (DistroFamily, error) {
	release, err := p.OSRelease()
	if err != nil {
		return FamilyUnknown, err
	}

	ids := strings.Fields(release["ID_LIKE"])
	if id := release["ID"]; id != "" {
		ids = append([]string{id}, ids...)
	}

	for _, id := range ids {
		switch id {
		case "debian", "ubuntu", "linuxmint", "pop":
			return FamilyDebian, nil
		case "fedora", "rhel", "centos", "nobara":
			return FamilyFedora, nil
		case "arch", "manjaro", "endeavouros":
			return FamilyArch, nil
		case "suse", "opensuse", "opensuse-tumbleweed", "opensuse-leap":
			return FamilySuse, nil
		}
	}

	return FamilyUnknown, nil
}

// KernelVersion returns the running kernel release string.
func (p *Prober) KernelVersion() (string, error) {
	line, found, err := p.ReadFirstLine(filepath.Join("proc", "sys", "kernel", "osrelease"))
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return line, nil
}

// FindPCIDevice scans the PCI device table for a "vendor:device" id
// (e.g. "8086:a75d") and returns the sysfs path of the first match.
func (p *Prober) FindPCIDevice(vendorDeviceID string) (string, bool, error) {
	vendor, device, found := strings.Cut(strings.ToLower(vendorDeviceID), ":")
	if !found {
		return "", false, fmt.Errorf("invalid PCI id %q: expected vendor:device", vendorDeviceID)
	}

	devicesDir := p.path("sys", "bus", "pci", "devices")
	entries, err := os.ReadDir(devicesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading PCI device table: %w", err)
	}

	for _, entry := range entries {
		devPath := filepath.Join(devicesDir, entry.Name())
		v, okV, err := readHexID(filepath.Join(devPath, "vendor"))
		if err != nil {
			return "", false, err
		}
		d, okD, err := readHexID(filepath.Join(devPath, "device"))
		if err != nil {
			return "", false, err
		}
		if okV && okD && v == vendor && d == device {
			return devPath, true, nil
		}
	}

	return "", false, nil
}

// FindACPIDeviceByHID looks for an ACPI device with the given hardware
// id (e.g. "INTC10B1") and returns its sysfs path.
func (p *Prober) FindACPIDeviceByHID(hid string) (string, bool, error) {
	devicesDir := p.path("sys", "bus", "acpi", "devices")
	entries, err := os.ReadDir(devicesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading ACPI device table: %w", err)
	}

	for _, entry := range entries {
		// ACPI device directories are named HID:instance
		name, _, _ := strings.Cut(entry.Name(), ":")
		if strings.EqualFold(name, hid) {
			return filepath.Join(devicesDir, entry.Name()), true, nil
		}
	}

	return "", false, nil
}

// IsKernelModuleLoaded reports whether the named module appears in the
// loaded module table.
func (p *Prober) IsKernelModuleLoaded(name string) (bool, error) {
	f, err := os.Open(p.path("proc", "modules"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("error reading module table: %w", err)
	}
	defer f.Close()

	// Module names use underscores in /proc/modules
	want := strings.ReplaceAll(name, "-", "_")

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[0] == want {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("error scanning module table: %w", err)
	}

	return false, nil
}

// KernelModuleAvailable reports whether the named module is installed
// for the running kernel (present in modules.dep, loaded or not) and
// returns its path relative to the module directory.
func (p *Prober) KernelModuleAvailable(name string) (string, bool, error) {
	kernel, err := p.KernelVersion()
	if err != nil {
		return "", false, err
	}
	if kernel == "" {
		return "", false, nil
	}

	depPath := p.path("lib", "modules", kernel, "modules.dep")
	f, err := os.Open(depPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading modules.dep: %w", err)
	}
	defer f.Close()

	want := strings.ReplaceAll(name, "-", "_")

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, _, _ := strings.Cut(scanner.Text(), ":")
		base := filepath.Base(entry)
		modName := strings.TrimSuffix(strings.TrimSuffix(base, ".zst"), ".xz")
		modName = strings.TrimSuffix(strings.TrimSuffix(modName, ".gz"), ".ko")
		if strings.ReplaceAll(modName, "-", "_") == want {
			return entry, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("error scanning modules.dep: %w", err)
	}

	return "", false, nil
}

// ReadFirstLine returns the first line of a file, typically a sysfs or
// procfs attribute. A missing file is reported as not found.
func (p *Prober) ReadFirstLine(relPath string) (string, bool, error) {
	f, err := os.Open(p.path(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading %s: %w", relPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), true, nil
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("error scanning %s: %w", relPath, err)
	}

	return "", true, nil
}

// FileExists reports whether a path exists under the probe root.
func (p *Prober) FileExists(relPath string) (bool, error) {
	_, err := os.Stat(p.path(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("error checking %s: %w", relPath, err)
	}
	return true, nil
}

func readHexID(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading %s: %w", path, err)
	}
	id := strings.TrimSpace(string(data))
	id = strings.TrimPrefix(id, "0x")
	return strings.ToLower(id), true, nil
}
