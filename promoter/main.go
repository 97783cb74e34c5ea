package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
	"github.com/TheRealMule17/cmis-engagement-platform/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("waitlist promoter starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	eventsTable := os.Getenv("EVENTS_TABLE")
	rsvpsTable := os.Getenv("RSVPS_TABLE")
	waitlistTable := os.Getenv("WAITLIST_TABLE")
	pastEventsTable := os.Getenv("PAST_EVENTS_TABLE")
	signalQueue := os.Getenv("CAPACITY_FREED_QUEUE")
	if connStr == "" || eventsTable == "" || rsvpsTable == "" || waitlistTable == "" || pastEventsTable == "" || signalQueue == "" {
		log.Fatal("missing storage config")
	}

	store, err := storage.New(connStr, storage.Config{
		EventsTable:     eventsTable,
		RSVPsTable:      rsvpsTable,
		WaitlistTable:   waitlistTable,
		PastEventsTable: pastEventsTable,
		SignalQueue:     signalQueue,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	dedupTTL := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", v)
		}
		dedupTTL = d
	}
	deduper := storage.NewRedisDeduper(redisClient(redisConn), dedupTTL)

	promoter := domain.NewPromoter(store, store, store)

	archiveInterval := time.Hour
	if v := os.Getenv("ARCHIVE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid ARCHIVE_INTERVAL: %v", v)
		}
		archiveInterval = d
	}

	ctx := context.Background()
	go runArchiver(ctx, domain.NewArchiver(store, store), archiveInterval)

	for {
		msg, err := store.DequeueSignal(ctx)
		if err != nil {
			log.Errorf("receive: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			time.Sleep(time.Second)
			continue
		}

		if msg.MessageText == nil {
			deleteSignal(ctx, store, msg.MessageID, msg.PopReceipt)
			continue
		}
		var sig domain.CapacityFreedSignal
		if err := json.Unmarshal([]byte(*msg.MessageText), &sig); err != nil {
			// Poison message, drop it.
			log.Warnf("bad signal payload: %v", err)
			deleteSignal(ctx, store, msg.MessageID, msg.PopReceipt)
			continue
		}

		fresh, err := deduper.Add(ctx, sig.ID)
		if err != nil {
			// Promotion is idempotent, so process anyway rather than
			// stalling the queue on a redis outage.
			log.Errorf("dedupe: %v", err)
			fresh = true
		}
		if !fresh {
			log.WithField("signal", sig.ID).Debug("duplicate signal skipped")
			deleteSignal(ctx, store, msg.MessageID, msg.PopReceipt)
			continue
		}

		if err := promoter.OnCapacityFreed(ctx, sig.EventID); err != nil {
			// Leave the message for redelivery after the visibility
			// timeout and forget the dedupe mark so the retry runs.
			log.WithField("event", sig.EventID).Errorf("promote: %v", err)
			if remErr := deduper.Remove(ctx, sig.ID); remErr != nil {
				log.Errorf("dedupe remove: %v", remErr)
			}
			continue
		}
		deleteSignal(ctx, store, msg.MessageID, msg.PopReceipt)
	}
}

func deleteSignal(ctx context.Context, store *storage.Storage, id, popReceipt *string) {
	if id == nil || popReceipt == nil {
		return
	}
	if err := store.DeleteSignal(ctx, *id, *popReceipt); err != nil {
		log.Errorf("delete signal: %v", err)
	}
}

// runArchiver periodically sweeps ended events into the archive table.
func runArchiver(ctx context.Context, archiver domain.Archiver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := archiver.ArchivePast(ctx, time.Now().UTC())
		if err != nil {
			log.Errorf("archive sweep: %v", err)
		} else if n > 0 {
			log.WithField("archived", n).Info("archive sweep complete")
		}
		<-ticker.C
	}
}

func redisClient(redisConn string) *redis.Client {
	opts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		opts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				opts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					opts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(opts)
}
