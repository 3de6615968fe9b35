// Command ddsnode starts one DDS domain participant: it loads
// configuration, wires the domain's registries and transports, starts the
// receive thread pool, the periodic SPDP discovery thread, the GC thread,
// the thread liveness monitor, and (if enabled) the debug monitor.
//
// Grounded on the teacher's cmd/server/main.go: sequential component
// construction with log.Fatalf on any setup error, no dependency
// injection framework.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/ddscore/internal/config"
	"github.com/ocx/ddscore/internal/debugmon"
	"github.com/ocx/ddscore/internal/discovery"
	"github.com/ocx/ddscore/internal/domain"
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/threadmon"
	"github.com/ocx/ddscore/internal/transport"
	"github.com/ocx/ddscore/internal/wire"
	"github.com/ocx/ddscore/pkg/plugins"
)

func main() {
	log.Println("starting ddscore domain participant...")

	cfg := config.Get()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	prefix := entity.NewGUIDPrefix(uint32(os.Getpid()), uint32(cfg.DDS.ParticipantIndex))

	dom := domain.New(cfg.DDS.DomainID, prefix, logger)

	udpFactory := transport.UDPFactory{}
	udpListener, err := udpFactory.NewListener(7400 + uint32(cfg.DDS.ParticipantIndex))
	if err != nil {
		log.Fatalf("ddsnode: udp listener: %v", err)
	}

	leaseDuration := rtps.Millis(int64(cfg.DDS.LeaseDurationMS))
	participant, err := dom.CreateParticipant(qos.Default(), []wire.Locator{udpListener.LocalLocator()}, leaseDuration, rtps.Now())
	if err != nil {
		log.Fatalf("ddsnode: create participant: %v", err)
	}
	log.Printf("participant created: %s", participant.GUID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	domain.StartReceivePool(ctx, logger, cfg.DDS.NRecvThreads, udpListener, func(src wire.Locator, data []byte) {
		logger.Debug("ddsnode: datagram received", "src", src, "bytes", len(data))
	})

	gcQueue := domain.NewGCQueue(dom)
	go gcQueue.Run(ctx)

	spdpInterval := time.Duration(cfg.DDS.SPDPIntervalMS) * time.Millisecond
	if cfg.DDS.RedisDirectoryEnable {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.DDS.RedisDirectoryAddr})
		dir := discovery.NewParticipantDirectory(&redisPubSub{rdb}, "", dom.Discovery, logger)
		if err := dir.Start(ctx); err != nil {
			log.Fatalf("ddsnode: redis directory start: %v", err)
		}
		go dir.AnnounceLoop(ctx, spdpInterval, prefix, participant.Addresses, "", leaseDuration)
	} else {
		domain.StartSPDPAnnounce(ctx, spdpInterval, func(now rtps.Time) {
			dom.RenewParticipant(participant, now)
		})
	}

	tracker := threadmon.NewTracker(30*time.Second, logger)
	go tracker.Run(ctx, 5*time.Second)

	if cfg.DDS.MonitorEnabled {
		registry := plugins.NewRegistry()
		feed := debugmon.NewFeed(logger)
		go feed.Run()
		mon := debugmon.NewMonitor(dom, registry, feed, logger)
		ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", cfg.DDS.MonitorPort))
		if err != nil {
			log.Fatalf("ddsnode: debug monitor listen: %v", err)
		}
		go func() {
			if err := mon.Serve(ctx, ln); err != nil {
				logger.Error("ddsnode: debug monitor exited", "error", err)
			}
		}()
		log.Printf("debug monitor listening on :%d", cfg.DDS.MonitorPort)
	}

	log.Printf("ddscore domain %d running (participant index %d)", cfg.DDS.DomainID, cfg.DDS.ParticipantIndex)
	<-ctx.Done()
	log.Println("shutting down")
}

// redisPubSub adapts a go-redis/v9 client to discovery.DirectoryPubSub,
// the same injected-driver seam the teacher uses for internal/fabric's
// RedisClient interface.
type redisPubSub struct {
	client *redis.Client
}

func (r *redisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	return r.client.Publish(ctx, channel, message).Err()
}

func (r *redisPubSub) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	sub := r.client.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()
	return func() { sub.Close() }, nil
}
