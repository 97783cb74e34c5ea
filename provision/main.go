package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
	"github.com/TheRealMule17/cmis-engagement-platform/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage provisioning starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx := context.Background()

	if err := createTables(ctx, connStr, []string{
		os.Getenv("EVENTS_TABLE"),
		os.Getenv("RSVPS_TABLE"),
		os.Getenv("WAITLIST_TABLE"),
		os.Getenv("PAST_EVENTS_TABLE"),
	}); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	if err := createQueues(ctx, connStr, []string{
		os.Getenv("CAPACITY_FREED_QUEUE"),
	}); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	if os.Getenv("SEED_SAMPLE_EVENTS") == "1" {
		if err := seedEvents(ctx, connStr); err != nil {
			log.Fatalf("seed events: %v", err)
		}
	}

	log.Info("storage provisioning complete")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		c := svc.NewClient(name)
		_, err := c.CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return err
			}
		}
	}
	return nil
}

type seedTemplate struct {
	title    string
	category string
	desc     string
}

var seedTemplates = []seedTemplate{
	{"Goldman Sachs Info Session", "Career", "Join us to learn about opportunities at Goldman Sachs."},
	{"Google Tech Talk", "Career", "Engineers from Google discuss cloud infrastructure."},
	{"McKinsey Case Workshop", "Career", "Learn how to crack the case interview with consultants."},
	{"Deloitte Consulting Prep", "Career", "Case interview preparation with Deloitte practitioners."},
	{"Amazon SDE Interview Workshop", "Career", "Deep dive into leadership principles and coding challenges."},
	{"CMIS Mixer", "Networking", "Meet fellow MIS students and faculty."},
	{"Alumni Networking Night", "Networking", "Connect with MIS alumni working in industry."},
	{"Industry Panel Discussion", "Networking", "Panel discussion with industry leaders about tech trends."},
	{"Corporate Speed Dating", "Networking", "Quick 5-minute networking sessions with various companies."},
	{"End of Year BBQ", "Social", "Celebrate the end of the semester with food and games."},
	{"Game Night", "Social", "Board games and video games at the rec center."},
	{"Spring Formal", "Social", "Annual spring formal event for MIS students."},
	{"First Year Mentoring Kickoff", "Mentorship", "Meet your mentor and set goals for the semester."},
	{"Career Advice Panel", "Mentorship", "Mentors share advice on navigating career paths."},
	{"Grad School Application Workshop", "Mentorship", "Guidance on applying to graduate programs."},
}

var seedCapacities = []int{20, 50, 75, 100, 150, 200}

// seedEvents inserts a fixed set of sample events for demo and local
// development environments.
func seedEvents(ctx context.Context, connStr string) error {
	store, err := storage.New(connStr, storage.Config{
		EventsTable:     os.Getenv("EVENTS_TABLE"),
		RSVPsTable:      os.Getenv("RSVPS_TABLE"),
		WaitlistTable:   os.Getenv("WAITLIST_TABLE"),
		PastEventsTable: os.Getenv("PAST_EVENTS_TABLE"),
		SignalQueue:     os.Getenv("CAPACITY_FREED_QUEUE"),
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rng := rand.New(rand.NewSource(now.UnixNano()))
	for _, tpl := range seedTemplates {
		date := futureEvening(now, rng)
		ev, err := domain.NewEvent(domain.CreateEventInput{
			Title:       tpl.title,
			Date:        date,
			Category:    tpl.category,
			Capacity:    seedCapacities[rng.Intn(len(seedCapacities))],
			Description: tpl.desc,
			Location:    "TBD",
		}, "provisioner", now)
		if err != nil {
			return err
		}
		if err := store.InsertEvent(ctx, ev); err != nil {
			return err
		}
		log.WithField("title", ev.Title).Info("seeded event")
	}
	return nil
}

// futureEvening picks an evening slot one to ninety days out.
func futureEvening(now time.Time, rng *rand.Rand) time.Time {
	day := now.AddDate(0, 0, 1+rng.Intn(90))
	hour := 18 + rng.Intn(3)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
}
