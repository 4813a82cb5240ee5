// Package persist mirrors the bet slip into durable key/value storage and
// restores it on start.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/slip"
)

const (
	DefaultSelectionsKey = "betslip_selections"
	DefaultShareCodeKey  = "betslip_share_code"

	defaultWriteTimeout = 2 * time.Second
)

// Keys names the two storage entries the bridge owns.
type Keys struct {
	Selections string
	ShareCode  string
}

// Bridge is the only writer of slip state to storage. The selections entry is
// absent when the slip is empty; the share code entry is absent when there is
// no code.
type Bridge struct {
	kv      domain.KVStore
	keys    Keys
	logger  *slog.Logger
	timeout time.Duration
}

// NewBridge returns a Bridge over kv. Empty key names fall back to the
// defaults.
func NewBridge(kv domain.KVStore, keys Keys, logger *slog.Logger) *Bridge {
	if keys.Selections == "" {
		keys.Selections = DefaultSelectionsKey
	}
	if keys.ShareCode == "" {
		keys.ShareCode = DefaultShareCodeKey
	}
	return &Bridge{
		kv:      kv,
		keys:    keys,
		logger:  logger.With(slog.String("component", "persist")),
		timeout: defaultWriteTimeout,
	}
}

// Restore reads the persisted selections and share code. Missing entries
// yield empty results. Malformed entries are logged, deleted and treated as
// absent; Restore never fails.
func (b *Bridge) Restore(ctx context.Context) ([]domain.Selection, string) {
	var selections []domain.Selection

	raw, ok := b.read(ctx, b.keys.Selections)
	if ok {
		if err := json.Unmarshal([]byte(raw), &selections); err != nil {
			b.logger.WarnContext(ctx, "discarding malformed stored selections",
				slog.String("key", b.keys.Selections),
				slog.String("error", err.Error()),
			)
			b.drop(ctx, b.keys.Selections)
			selections = nil
		}
	}
	selections = wellFormed(selections)

	code, ok := b.read(ctx, b.keys.ShareCode)
	if ok && !domain.ValidShareCode(code) {
		b.logger.WarnContext(ctx, "discarding malformed stored share code",
			slog.String("key", b.keys.ShareCode),
		)
		b.drop(ctx, b.keys.ShareCode)
		code = ""
	}

	if len(selections) > 0 || code != "" {
		b.logger.InfoContext(ctx, "restored bet slip",
			slog.Int("selections", len(selections)),
			slog.Bool("share_code", code != ""),
		)
	}
	return selections, code
}

// Attach mirrors every relevant store mutation into storage. It returns the
// unsubscribe function.
func (b *Bridge) Attach(store *slip.Store) func() {
	return store.Subscribe(b.onChange)
}

func (b *Bridge) onChange(c domain.SlipChange) {
	switch c.Kind {
	case domain.ChangeStake, domain.ChangeStatus:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	b.Save(ctx, c.Snapshot)
}

// Save writes snap to storage. Write failures are logged.
func (b *Bridge) Save(ctx context.Context, snap domain.Snapshot) {
	if len(snap.Selections) == 0 {
		b.drop(ctx, b.keys.Selections)
	} else if data, err := json.Marshal(snap.Selections); err != nil {
		b.logger.ErrorContext(ctx, "encode selections", slog.String("error", err.Error()))
	} else if err := b.kv.Set(ctx, b.keys.Selections, string(data)); err != nil {
		b.logger.ErrorContext(ctx, "persist selections failed",
			slog.String("key", b.keys.Selections),
			slog.String("error", err.Error()),
		)
	}

	if snap.ShareCode == nil {
		b.drop(ctx, b.keys.ShareCode)
	} else if err := b.kv.Set(ctx, b.keys.ShareCode, *snap.ShareCode); err != nil {
		b.logger.ErrorContext(ctx, "persist share code failed",
			slog.String("key", b.keys.ShareCode),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bridge) read(ctx context.Context, key string) (string, bool) {
	v, err := b.kv.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return "", false
	}
	if err != nil {
		b.logger.WarnContext(ctx, "read stored slip failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return v, true
}

func (b *Bridge) drop(ctx context.Context, key string) {
	if err := b.kv.Delete(ctx, key); err != nil {
		b.logger.ErrorContext(ctx, "delete stored entry failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// wellFormed drops entries that could never have been added to a slip.
func wellFormed(in []domain.Selection) []domain.Selection {
	out := in[:0]
	for _, s := range in {
		if s.FixtureID <= 0 || s.Market == "" || s.Selection == "" || !(s.Odd > 1) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
