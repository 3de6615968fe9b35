package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/transport"
	"github.com/ocx/ddscore/internal/wire"
)

// StartSPDPAnnounce runs the discovery thread spec.md section 5 lists
// separately from the receive/transmit/GC threads: it calls announce
// every interval until ctx is cancelled. cmd/ddsnode starts it only when
// config.DDS.RedisDirectoryEnable is off, with an announce that renews the
// local participant's lease; no SPDP message is sent. With the directory
// enabled it runs ParticipantDirectory.AnnounceLoop instead.
func StartSPDPAnnounce(ctx context.Context, interval time.Duration, announce func(now rtps.Time)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				announce(rtps.Now())
			}
		}
	}()
}

// StartReceivePool runs n receive threads against listener, each calling
// its blocking Accept loop with the same handler, matching spec.md
// section 6's "n_recv_threads >= 1, per-thread mode {RTM_MANY, RTM_SINGLE}"
// config knob: RTM_MANY is n goroutines racing to read the same socket
// (the OS fans datagrams/connections out across them); RTM_SINGLE is a
// single thread, modeled here simply as n == 1.
func StartReceivePool(ctx context.Context, logger *slog.Logger, n int, listener transport.Listener, handler func(src wire.Locator, data []byte)) {
	if logger == nil {
		logger = slog.Default()
	}
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go func(worker int) {
			if err := listener.Accept(ctx, handler); err != nil && ctx.Err() == nil {
				logger.Error("domain: receive thread exited", "worker", worker, "error", err)
			}
		}(i)
	}
}
