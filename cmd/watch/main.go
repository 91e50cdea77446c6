package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/client"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/logging"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "tracking service websocket endpoint")
	subject := flag.String("subject", "watch-cli", "subscriber identity")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	orders := flag.Args()
	if len(orders) == 0 {
		log.Fatal("usage: watch [flags] ORDER_ID [ORDER_ID ...]")
	}

	logging.InitLogger(*logLevel, "text")
	clock := clockwork.NewRealClock()

	tracker := client.NewTracker(client.Config{URL: *url, Subject: *subject}, clock, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tracker.Start(ctx); err != nil {
		slog.Error("Failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		tracker.Stop()
	}()

	for _, orderID := range orders {
		if err := tracker.Track(orderID); err != nil {
			slog.Error("Failed to track order", "order_id", orderID, "error", err)
			os.Exit(1)
		}
	}

	for update := range tracker.Updates() {
		switch {
		case update.Record != nil:
			printRecord(tracker, update.Record)
		case update.Err != nil:
			fmt.Fprintf(os.Stderr, "! %v\n", update.Err)
		}
	}
}

func printRecord(tracker *client.Tracker, record *domain.OrderStatusRecord) {
	line := fmt.Sprintf("%s  %-16s", record.OrderID, record.Status)

	if progress := record.Status.Progress(); progress != domain.ProgressSentinel {
		line += fmt.Sprintf("  %3.0f%%", progress*100)
	}
	if remaining, ok := tracker.TimeRemaining(record.OrderID); ok {
		line += fmt.Sprintf("  eta %s", remaining.Round(time.Minute))
	}
	if dp := record.DeliveryPartner; dp != nil && dp.Location != nil {
		line += fmt.Sprintf("  courier %.5f,%.5f", dp.Location.Lat, dp.Location.Lng)
	}

	fmt.Println(line)
}
