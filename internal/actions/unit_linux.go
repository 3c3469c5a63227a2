//go:build linux

package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

type dbusUnits struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

// NewUnitController connects to the system bus.
func NewUnitController(ctx context.Context) (UnitController, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &dbusUnits{conn: conn}, nil
}

func (u *dbusUnits) StartUnit(ctx context.Context, unit string) (string, error) {
	return u.run(ctx, unit, func(c *dbus.Conn, ch chan<- string) (int, error) {
		return c.StartUnitContext(ctx, unit, "replace", ch)
	})
}

func (u *dbusUnits) StopUnit(ctx context.Context, unit string) (string, error) {
	return u.run(ctx, unit, func(c *dbus.Conn, ch chan<- string) (int, error) {
		return c.StopUnitContext(ctx, unit, "replace", ch)
	})
}

func (u *dbusUnits) RestartUnit(ctx context.Context, unit string) (string, error) {
	return u.run(ctx, unit, func(c *dbus.Conn, ch chan<- string) (int, error) {
		return c.RestartUnitContext(ctx, unit, "replace", ch)
	})
}

// run queues the systemd job and waits for its result.
func (u *dbusUnits) run(ctx context.Context, unit string, op func(*dbus.Conn, chan<- string) (int, error)) (string, error) {
	u.mu.RLock()
	conn := u.conn
	u.mu.RUnlock()
	if conn == nil {
		return "", fmt.Errorf("systemd connection is closed")
	}

	ch := make(chan string, 1)
	if _, err := op(conn, ch); err != nil {
		return "", err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (u *dbusUnits) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
	return nil
}
