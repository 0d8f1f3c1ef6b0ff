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

	"github.com/annel0/voxelgen/internal/eventbus"
)

const (
	defaultNATSURL = "nats://127.0.0.1:4222"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL    = flag.String("url", defaultNATSURL, "NATS server URL")
		stream     = flag.String("stream", "VOXEL", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events (without -follow)")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
		idle       = flag.Duration("idle", 2*time.Second, "Stop after this long without events (without -follow)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "tail":
		err = tailEvents(ctx, bus, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Since:      *since,
			Limit:      *limit,
			Follow:     *follow,
			Idle:       *idle,
		})
	case "stats":
		err = showStats(bus)
	case "types":
		showTypes()
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

type TailOptions struct {
	EventTypes []string
	Since      string
	Limit      int
	Follow     bool
	Idle       time.Duration
}

// tailEvents выводит события из стрима начиная с since
func tailEvents(ctx context.Context, bus *eventbus.JetStreamBus, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	startTime, err := parseSinceTime(opts.Since, time.Now())
	if err != nil {
		return fmt.Errorf("invalid since time: %w", err)
	}

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Replay(ctx, eventbus.Filter{Types: opts.EventTypes}, startTime, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	count := 0
	timer := time.NewTimer(opts.Idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", count)
			return nil
		case <-timer.C:
			if !opts.Follow {
				fmt.Printf("\n📊 Total events: %d\n", count)
				return nil
			}
		case ev := <-events:
			printEvent(ev)
			count++
			if !opts.Follow && count >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", count)
				return nil
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(opts.Idle)
	}
}

// showStats выводит состояние стрима
func showStats(bus *eventbus.JetStreamBus) error {
	info, err := bus.Info()
	if err != nil {
		return err
	}
	fmt.Println("📊 Stream statistics")
	fmt.Printf("Stream: %s\n", info.Stream)
	fmt.Printf("Messages: %d (%d bytes)\n", info.Messages, info.Bytes)
	if info.Messages > 0 {
		fmt.Printf("Period: %s - %s\n", info.First.UTC().Format(timeFormat), info.Last.UTC().Format(timeFormat))
	}
	return nil
}

// showTypes выводит известные типы событий
func showTypes() {
	fmt.Println("📋 Event types")
	fmt.Printf("Type: %s\n  Description: меш чанка пересобран и установлен в рендер\n", eventbus.EventChunkRebuilt)
	fmt.Printf("Type: %s\n  Description: чанк выгружен, меш освобождён\n", eventbus.EventChunkUnloaded)
	fmt.Printf("Type: %s\n  Description: правка вокселя применена\n", eventbus.EventVoxelEdited)
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n", ev.Timestamp.Format("15:04:05"), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.EventChunkRebuilt:
		var p eventbus.ChunkRebuilt
		if ev.Decode(&p) == nil {
			fmt.Printf("  Chunk: %s v%d mode=%s vertices=%d primitives=%d missing=%d cached=%v %.2fms\n",
				p.Coords, p.Version, p.Mode, p.Vertices, p.Primitives, p.Missing, p.Cached, p.TookMs)
		}
	case eventbus.EventChunkUnloaded:
		var p eventbus.ChunkUnloaded
		if ev.Decode(&p) == nil {
			fmt.Printf("  Chunk: %s\n", p.Coords)
		}
	case eventbus.EventVoxelEdited:
		var p eventbus.VoxelEdited
		if ev.Decode(&p) == nil {
			fmt.Printf("  Chunk: %s Local: %s Solid: %v\n", p.Chunk, p.Local, p.Solid)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное RFC3339
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}
	duration, err := time.ParseDuration(since)
	if err != nil {
		return time.Parse(time.RFC3339, since)
	}
	return from.Add(-duration), nil
}
