package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/TheRealMule17/cmis-engagement-platform/api"
	"github.com/TheRealMule17/cmis-engagement-platform/domain"
	"github.com/TheRealMule17/cmis-engagement-platform/storage"
)

// reservations exposes seat reservation and cancellation behind one
// value for the route handlers.
type reservations struct {
	domain.ReservationService
	domain.CancellationService
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	eventsTable := os.Getenv("EVENTS_TABLE")
	rsvpsTable := os.Getenv("RSVPS_TABLE")
	waitlistTable := os.Getenv("WAITLIST_TABLE")
	pastEventsTable := os.Getenv("PAST_EVENTS_TABLE")
	signalQueue := os.Getenv("CAPACITY_FREED_QUEUE")
	if connStr == "" || eventsTable == "" || rsvpsTable == "" || waitlistTable == "" || pastEventsTable == "" || signalQueue == "" {
		log.Fatal("missing storage config")
	}

	pageSize := 30
	if v := os.Getenv("EVENTS_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid EVENTS_PAGE_SIZE: %v", v)
		}
		pageSize = n
	}

	store, err := storage.New(connStr, storage.Config{
		EventsTable:     eventsTable,
		RSVPsTable:      rsvpsTable,
		WaitlistTable:   waitlistTable,
		PastEventsTable: pastEventsTable,
		SignalQueue:     signalQueue,
		PageSize:        pageSize,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var events domain.EventStore = store
	if rc := redisClientFromEnv(); rc != nil {
		cacheTTL := 30 * time.Second
		if v := os.Getenv("EVENT_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid EVENT_CACHE_TTL: %v", v)
			}
			cacheTTL = d
		}
		events = storage.NewEventCache(store, rc, cacheTTL)
	}

	catalog := domain.NewCatalog(events, store)
	resv := reservations{
		ReservationService:  domain.NewReservationService(events, store),
		CancellationService: domain.NewCancellationService(events, store, store),
	}
	waitlist := domain.NewWaitlistService(events, store)

	auth := authFromEnv()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	logger := log.New()
	api.Register(e, catalog, resv, waitlist, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func authFromEnv() *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	domainName := os.Getenv("AUTH_DOMAIN")
	if audience == "" || domainName == "" {
		log.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domainName)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domainName+"/")
}

// redisClientFromEnv returns nil when no Redis connection string is
// configured; caching is optional for the API.
func redisClientFromEnv() *redis.Client {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisConn)
	if err != nil {
		// Azure-style "host:port,password=...,ssl=true" strings.
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
