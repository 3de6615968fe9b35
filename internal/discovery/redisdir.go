package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/wire"
)

// DirectoryPubSub is a minimal interface any Redis driver (go-redis,
// redigo) can satisfy, so this package never imports a specific client —
// the concrete client is constructed and injected by cmd/ddsnode. Mirrors
// internal/fabric's RedisPubSubClient shape.
type DirectoryPubSub interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// participantAnnounce is the wire-adjacent JSON form of one SPDP
// announcement bridged across processes that cannot reach each other over
// multicast UDP (e.g. separate containers on one host).
type participantAnnounce struct {
	Prefix        entity.GUIDPrefix `json:"prefix"`
	Addresses     []wire.Locator    `json:"addresses"`
	UserData      string            `json:"user_data"`
	LeaseDuration rtps.Duration     `json:"lease_duration"`
}

// ParticipantDirectory bridges SPDP across processes over Redis Pub/Sub,
// adapted from internal/fabric's RedisHubStore/RedisEventBus: where that
// code replicates a spoke registry across pods, this replicates the SPDP
// participant announcement a real UDP multicast domain would otherwise
// deliver, for processes placed where multicast doesn't reach.
type ParticipantDirectory struct {
	mu       sync.Mutex
	pubsub   DirectoryPubSub
	channel  string
	engine   *Engine
	logger   *slog.Logger
	unsub    func()
	stopped  bool
}

// NewParticipantDirectory constructs a directory that publishes this
// process's own SPDP announcements to channel and feeds announcements
// received from other processes into e.HandleSPDP.
func NewParticipantDirectory(pubsub DirectoryPubSub, channel string, e *Engine, logger *slog.Logger) *ParticipantDirectory {
	if channel == "" {
		channel = "ddscore:spdp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParticipantDirectory{pubsub: pubsub, channel: channel, engine: e, logger: logger}
}

// Start subscribes to the shared channel; every announcement received
// from another process is run through HandleSPDP exactly as if it had
// arrived over UDP: the directory itself owns no liveliness state, it only
// feeds the local engine's normal SPDP path.
func (d *ParticipantDirectory) Start(ctx context.Context) error {
	unsub, err := d.pubsub.Subscribe(ctx, d.channel, func(data []byte) {
		var msg participantAnnounce
		if err := json.Unmarshal(data, &msg); err != nil {
			d.logger.Warn("discovery: redis directory received malformed announcement", "error", err)
			return
		}
		d.engine.HandleSPDP(msg.Prefix, msg.Addresses, msg.UserData, msg.LeaseDuration, rtps.Now())
	})
	if err != nil {
		return fmt.Errorf("discovery: redis directory subscribe: %w", err)
	}
	d.mu.Lock()
	d.unsub = unsub
	d.mu.Unlock()
	return nil
}

// Announce publishes this process's own SPDP sample to every other
// process sharing the channel.
func (d *ParticipantDirectory) Announce(ctx context.Context, prefix entity.GUIDPrefix, addrs []wire.Locator, userData string, leaseDuration rtps.Duration) error {
	data, err := json.Marshal(participantAnnounce{
		Prefix:        prefix,
		Addresses:     addrs,
		UserData:      userData,
		LeaseDuration: leaseDuration,
	})
	if err != nil {
		return fmt.Errorf("discovery: marshal spdp announcement: %w", err)
	}
	if err := d.pubsub.Publish(ctx, d.channel, data); err != nil {
		return fmt.Errorf("discovery: redis directory publish: %w", err)
	}
	return nil
}

// Stop unsubscribes from the channel. Safe to call more than once.
func (d *ParticipantDirectory) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.unsub != nil {
		d.unsub()
	}
}

// AnnounceLoop republishes this process's own participant announcement
// every interval until ctx is cancelled, the same periodic-SPDP cadence
// spec.md §6 describes for the wire protocol, just carried over Redis
// instead of UDP multicast.
func (d *ParticipantDirectory) AnnounceLoop(ctx context.Context, interval time.Duration, prefix entity.GUIDPrefix, addrs []wire.Locator, userData string, leaseDuration rtps.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Announce(ctx, prefix, addrs, userData, leaseDuration); err != nil {
				d.logger.Warn("discovery: redis directory announce failed", "error", err)
			}
		}
	}
}
