package orders

import (
	"context"
	"errors"
	"strings"
	"time"
)

// BusyModeSetting is the runtime switch name; pkg/redis namespaces it.
const BusyModeSetting = "busy_mode"

type settingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SettingKey(name string) string
}

// BusyGate answers whether the kitchen has paused new orders. The Redis
// switch wins over the static flag; read failures fall back to the flag.
type BusyGate struct {
	store    settingsStore
	fallback bool
}

func NewBusyGate(store settingsStore, fallback bool) *BusyGate {
	return &BusyGate{store: store, fallback: fallback}
}

func (g *BusyGate) Busy(ctx context.Context) bool {
	if g == nil {
		return false
	}
	if g.store == nil {
		return g.fallback
	}
	value, err := g.store.Get(ctx, g.store.SettingKey(BusyModeSetting))
	if err != nil {
		return g.fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on":
		return true
	case "0", "false", "off":
		return false
	default:
		return g.fallback
	}
}

// SetBusy flips the shared switch for every API instance. The switch has no
// TTL; it stays until a staff member clears it.
func (g *BusyGate) SetBusy(ctx context.Context, busy bool) error {
	if g == nil || g.store == nil {
		return errors.New("busy mode switch unavailable")
	}
	value := "0"
	if busy {
		value = "1"
	}
	return g.store.Set(ctx, g.store.SettingKey(BusyModeSetting), value, 0)
}
