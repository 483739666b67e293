// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Handle names a service unit and the manager scope it lives in.
// A handle is bound to a single apply/revert invocation.
type Handle struct {
	Unit      string
	UserScope bool
}

func (h Handle) String() string {
	if h.UserScope {
		return h.Unit + " (user)"
	}
	return h.Unit
}

// Conn is the subset of the systemd dbus connection the controller
// uses. Narrowed to an interface so tests can substitute a fake bus.
type Conn interface {
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// ConnectFunc opens a systemd manager connection for the given scope.
type ConnectFunc func(ctx context.Context, userScope bool) (Conn, error)

func systemdConnect(ctx context.Context, userScope bool) (Conn, error) {
	if userScope {
		return dbus.NewUserConnectionContext(ctx)
	}
	return dbus.NewSystemdConnectionContext(ctx)
}

// Controller wraps start/stop/restart/enable/disable of service units
// with wait-for-ready polling.
type Controller struct {
	connect      ConnectFunc
	pollInterval time.Duration
}

// NewController creates a controller talking to the real systemd bus.
func NewController() *Controller {
	return &Controller{
		connect:      systemdConnect,
		pollInterval: 500 * time.Millisecond,
	}
}

// NewControllerWithConnect creates a controller with a custom bus
// connector, for tests.
func NewControllerWithConnect(connect ConnectFunc) *Controller {
	return &Controller{
		connect:      connect,
		pollInterval: 10 * time.Millisecond,
	}
}

func (c *Controller) withConn(ctx context.Context, userScope bool, fn func(Conn) error) error {
	conn, err := c.connect(ctx, userScope)
	if err != nil {
		return fmt.Errorf("error connecting to service manager: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func waitForJob(ctx context.Context, ch <-chan string, unit string) error {
	select {
	case status := <-ch:
		if status != "done" {
			return fmt.Errorf("job for %s finished with status %q", unit, status)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start starts a unit and waits for the job to finish.
func (c *Controller) Start(ctx context.Context, h Handle) error {
	return c.withConn(ctx, h.UserScope, func(conn Conn) error {
		ch := make(chan string, 1)
		if _, err := conn.StartUnitContext(ctx, h.Unit, "replace", ch); err != nil {
			return fmt.Errorf("error starting %s: %w", h, err)
		}
		return waitForJob(ctx, ch, h.Unit)
	})
}

// Stop stops a unit. A unit that is not loaded counts as stopped.
func (c *Controller) Stop(ctx context.Context, h Handle) error {
	return c.withConn(ctx, h.UserScope, func(conn Conn) error {
		ch := make(chan string, 1)
		if _, err := conn.StopUnitContext(ctx, h.Unit, "replace", ch); err != nil {
			if isNoSuchUnit(err) {
				return nil
			}
			return fmt.Errorf("error stopping %s: %w", h, err)
		}
		return waitForJob(ctx, ch, h.Unit)
	})
}

// Restart restarts a unit. A unit that does not exist yet (first
// install) is started instead.
func (c *Controller) Restart(ctx context.Context, h Handle) error {
	return c.withConn(ctx, h.UserScope, func(conn Conn) error {
		ch := make(chan string, 1)
		_, err := conn.RestartUnitContext(ctx, h.Unit, "replace", ch)
		if err != nil {
			if !isNoSuchUnit(err) {
				return fmt.Errorf("error restarting %s: %w", h, err)
			}
			ch = make(chan string, 1)
			if _, err := conn.StartUnitContext(ctx, h.Unit, "replace", ch); err != nil {
				return fmt.Errorf("error starting %s: %w", h, err)
			}
		}
		return waitForJob(ctx, ch, h.Unit)
	})
}

// Enable enables a unit file.
func (c *Controller) Enable(ctx context.Context, h Handle) error {
	return c.withConn(ctx, h.UserScope, func(conn Conn) error {
		if _, _, err := conn.EnableUnitFilesContext(ctx, []string{h.Unit}, false, true); err != nil {
			return fmt.Errorf("error enabling %s: %w", h, err)
		}
		return conn.ReloadContext(ctx)
	})
}

// Disable disables a unit file.
func (c *Controller) Disable(ctx context.Context, h Handle) error {
	return c.withConn(ctx, h.UserScope, func(conn Conn) error {
		if _, err := conn.DisableUnitFilesContext(ctx, []string{h.Unit}, false); err != nil {
			if isNoSuchUnit(err) {
				return nil
			}
			return fmt.Errorf("error disabling %s: %w", h, err)
		}
		return conn.ReloadContext(ctx)
	})
}

// IsActive reports whether a unit's ActiveState is "active".
func (c *Controller) IsActive(ctx context.Context, unit string, userScope bool) (bool, error) {
	var active bool
	err := c.withConn(ctx, userScope, func(conn Conn) error {
		statuses, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
		if err != nil {
			return fmt.Errorf("error querying %s: %w", unit, err)
		}
		for _, status := range statuses {
			if status.Name == unit && status.ActiveState == "active" {
				active = true
			}
		}
		return nil
	})
	return active, err
}

// WaitUntilActive polls until the unit reports active or the timeout
// elapses. Timeout returns false, not an error; the caller decides
// whether that is fatal.
func (c *Controller) WaitUntilActive(ctx context.Context, h Handle, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		active, err := c.IsActive(ctx, h.Unit, h.UserScope)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func isNoSuchUnit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchUnit") || strings.Contains(msg, "not loaded") || strings.Contains(msg, "not found")
}
