package domain

import "context"

// KVStore is durable client-local key/value storage. Get returns ErrNotFound
// when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SignalBus provides pub/sub fan-out of raw payloads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SlipBackend is the external slip storage and validation service.
type SlipBackend interface {
	SaveSlip(ctx context.Context, bets []Selection) (ShareReceipt, error)
	GetSlip(ctx context.Context, code string) (SharedSlip, error)
	ValidateSlip(ctx context.Context, bets []Selection) (Verdict, error)
}

// MatchInfoFetcher loads display metadata for a single fixture.
type MatchInfoFetcher interface {
	GetMatchInfo(ctx context.Context, fixtureID int64) (MatchInfo, error)
}
