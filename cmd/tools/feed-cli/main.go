package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/annel0/autotile/internal/eventbus"
	"github.com/annel0/autotile/internal/network"
)

func main() {
	var (
		command  = flag.String("cmd", "tail", "Command: tail, health, events")
		feedAddr = flag.String("feed", "localhost:7780", "KCP redraw feed address")
		grpcAddr = flag.String("grpc", "localhost:9090", "gRPC health address")
		natsURL  = flag.String("nats", "nats://localhost:4222", "NATS URL for events")
		stream   = flag.String("stream", "AUTOTILE", "JetStream stream name")
		mapName  = flag.String("map", "overworld", "Map to subscribe to")
		token    = flag.String("token", "", "JWT for feeds that require it")
		types    = flag.String("types", "", "Event types filter (comma-separated)")
		limit    = flag.Int("limit", 0, "Stop after N batches or events (0 = unlimited)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *command {
	case "tail":
		err = tailFeed(ctx, *feedAddr, *mapName, *token, *limit)
	case "health":
		err = checkHealth(ctx, *grpcAddr)
	case "events":
		err = tailEvents(ctx, *natsURL, *stream, parseStringList(*types), *limit)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, health, events")
		os.Exit(1)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tailFeed печатает пакеты перерисовки одной карты
func tailFeed(ctx context.Context, addr, mapName, token string, limit int) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	client, err := network.DialFeed(dialCtx, addr, mapName, token)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("🎬 Tailing redraws of %s via %s\n", mapName, addr)
	for n := 0; limit == 0 || n < limit; n++ {
		batch, err := client.Next(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s: %d cells\n", batch.Seq, batch.Map, len(batch.Cells))
		for _, c := range batch.Cells {
			fmt.Printf("   %-16s tile=%-3d idx=%-3d mask=%08b %s\n", c.Pos, c.Tile, c.Index, c.Mask, c.Sprite)
		}
	}
	return nil
}

// checkHealth опрашивает gRPC health сервис
func checkHealth(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "autotile"})
	if err != nil {
		return err
	}
	fmt.Printf("❤️  %s: %s\n", addr, resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(2)
	}
	return nil
}

// tailEvents печатает события шины из JetStream
func tailEvents(ctx context.Context, url, stream string, types []string, limit int) error {
	bus, err := eventbus.NewJetStreamBus(url, stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	received := make(chan struct{}, 64)
	mark := func() {
		select {
		case received <- struct{}{}:
		default:
		}
	}
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		if ev.EventType == eventbus.EventTileChanged {
			if te, err := eventbus.DecodeTileEvent(ev.Payload); err == nil {
				fmt.Printf("%s %s map=%s (%d,%d,%d) %d→%d idx=%d redraws=%d\n",
					ev.Timestamp.Format(time.RFC3339), ev.Source, te.Map, te.X, te.Y, te.Layer, te.Previous, te.Tile, te.Index, te.Redraws)
				mark()
				return
			}
		}
		fmt.Printf("%s %s %s map=%s\n", ev.Timestamp.Format(time.RFC3339), ev.Source, ev.EventType, ev.Metadata["map"])
		mark()
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("🎬 Tailing events of stream %s\n", stream)
	for n := 0; limit == 0 || n < limit; n++ {
		select {
		case <-received:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
