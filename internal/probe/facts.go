// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"fmt"

	"github.com/hwfix-dev/hwfix/internal/core/models"
)

// ServiceStater answers whether a service unit is currently active.
// The systemd-backed implementation lives in the service package; the
// indirection keeps the prober itself free of a bus dependency.
type ServiceStater interface {
	IsActive(ctx context.Context, unit string, userScope bool) (bool, error)
}

// BaseFacts gathers the facts every fix can rely on without declaring
// them: distro identity and kernel version.
func (p *Prober) BaseFacts() (map[string]interface{}, error) {
	family, err := p.DetectDistroFamily()
	if err != nil {
		return nil, err
	}

	release, err := p.OSRelease()
	if err != nil {
		return nil, err
	}

	kernel, err := p.KernelVersion()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"distro_family":  string(family),
		"distro_id":      release["ID"],
		"distro_version": release["VERSION_ID"],
		"kernel_version": kernel,
	}, nil
}

// GatherFacts evaluates the declared fact probes of a fix and merges
// the results over the base facts. Existence probes produce booleans,
// file_first_line produces a string (empty when the file is missing).
func GatherFacts(ctx context.Context, p *Prober, svc ServiceStater, specs map[string]models.FactSpec) (map[string]interface{}, error) {
	facts, err := p.BaseFacts()
	if err != nil {
		return nil, err
	}

	for name, spec := range specs {
		value, err := gatherFact(ctx, p, svc, spec)
		if err != nil {
			return nil, fmt.Errorf("error probing fact %q: %w", name, err)
		}
		facts[name] = value
	}

	return facts, nil
}

func gatherFact(ctx context.Context, p *Prober, svc ServiceStater, spec models.FactSpec) (interface{}, error) {
	switch spec.Probe {
	case "pci":
		_, found, err := p.FindPCIDevice(spec.ID)
		return found, err
	case "acpi":
		_, found, err := p.FindACPIDeviceByHID(spec.ID)
		return found, err
	case "module_loaded":
		return p.IsKernelModuleLoaded(spec.Name)
	case "module_available":
		_, found, err := p.KernelModuleAvailable(spec.Name)
		return found, err
	case "service_active":
		if svc == nil {
			return false, fmt.Errorf("service probing not available")
		}
		return svc.IsActive(ctx, spec.Name, spec.Scope == "user")
	case "file_exists":
		return p.FileExists(spec.Path)
	case "file_first_line":
		line, _, err := p.ReadFirstLine(spec.Path)
		return line, err
	default:
		return nil, fmt.Errorf("unknown probe type %q", spec.Probe)
	}
}

// Fingerprint assembles the target-system identification recorded in
// run reports.
func (p *Prober) Fingerprint(hardwareIDs []string) (models.Fingerprint, error) {
	family, err := p.DetectDistroFamily()
	if err != nil {
		return models.Fingerprint{}, err
	}
	release, err := p.OSRelease()
	if err != nil {
		return models.Fingerprint{}, err
	}
	kernel, err := p.KernelVersion()
	if err != nil {
		return models.Fingerprint{}, err
	}

	return models.Fingerprint{
		DistroFamily:  string(family),
		DistroVersion: release["VERSION_ID"],
		KernelVersion: kernel,
		HardwareIDs:   hardwareIDs,
	}, nil
}
