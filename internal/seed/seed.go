// Package seed generates synthetic travel content and publishes it as
// content created events, for loading a development index.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/event"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
)

type place struct {
	City    string
	Country string
	Lat     float64
	Lon     float64
}

var places = []place{
	{"Tokyo", "Japan", 35.6762, 139.6503},
	{"Kyoto", "Japan", 35.0116, 135.7681},
	{"Paris", "France", 48.8566, 2.3522},
	{"Lisbon", "Portugal", 38.7223, -9.1393},
	{"Marrakesh", "Morocco", 31.6295, -7.9811},
	{"Istanbul", "Turkey", 41.0082, 28.9784},
	{"Cusco", "Peru", -13.5320, -71.9675},
	{"Reykjavik", "Iceland", 64.1466, -21.9426},
	{"Cape Town", "South Africa", -33.9249, 18.4241},
	{"Hanoi", "Vietnam", 21.0278, 105.8342},
	{"Queenstown", "New Zealand", -45.0312, 168.6626},
	{"Tunis", "Tunisia", 36.8065, 10.1815},
}

var themes = []struct {
	Title string
	Type  string
	Blurb string
}{
	{"Adventure", "trip", "A week of hiking, river crossings and nights under the stars around %s."},
	{"Food Tour", "tour", "Street food, markets and a cooking class with local chefs in %s."},
	{"Old Town Walk", "tour", "A guided walk through the historic quarter of %s and its hidden courtyards."},
	{"Weekend Escape", "trip", "Two relaxed days in %s with boutique stays and slow mornings."},
	{"Photo Diary", "story", "Notes and photographs from a month spent wandering %s."},
	{"Travel Guide", "guide", "Where to stay, what to eat and how to get around %s on a budget."},
}

// Generator builds ContentRecords from a seeded source so runs are repeatable.
type Generator struct {
	rng   *rand.Rand
	now   time.Time
	users []string
}

// NewGenerator creates a generator. The same seed and now yield the same
// records apart from their ids.
func NewGenerator(seed uint64, now time.Time, users int) *Generator {
	if users < 1 {
		users = 1
	}
	g := &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x5eed)),
		now: now,
	}
	for i := range users {
		g.users = append(g.users, fmt.Sprintf("seed-user-%03d", i+1))
	}
	return g
}

// Next returns one synthetic record.
func (g *Generator) Next() domain.ContentRecord {
	p := places[g.rng.IntN(len(places))]
	t := themes[g.rng.IntN(len(themes))]

	created := g.now.Add(-time.Duration(g.rng.IntN(365*24)) * time.Hour)
	updated := created.Add(time.Duration(g.rng.Int64N(int64(g.now.Sub(created)) + 1)))

	rec := domain.ContentRecord{
		ID:          uuid.NewString(),
		Title:       p.City + " " + t.Title,
		Description: fmt.Sprintf(t.Blurb, p.City+", "+p.Country),
		Rating:      float64(g.rng.IntN(51)) / 10,
		LikeCount:   g.rng.Int64N(5000),
		Budget:      float64(50 + g.rng.IntN(40)*50),
		Published:   g.rng.IntN(10) < 8,
		Type:        t.Type,
		UserID:      g.users[g.rng.IntN(len(g.users))],
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	if t.Type != "story" {
		// Scatter within roughly 20 km of the city centre.
		rec.Location = &domain.GeoPoint{
			Lat: p.Lat + (g.rng.Float64()-0.5)*0.36,
			Lon: p.Lon + (g.rng.Float64()-0.5)*0.36,
		}
	}
	return rec
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publish sends count generated records as created events and returns how
// many were published before the first failure.
func Publish(ctx context.Context, p Publisher, g *Generator, topics event.Topics, count int, logger *slog.Logger) (int, error) {
	for i := range count {
		rec := g.Next()
		ev, err := event.Encode(event.NewEnvelope(event.OperationCreated, rec), topics, "search-seed")
		if err != nil {
			return i, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		if err := p.Publish(ctx, topics.Created, ev); err != nil {
			return i, fmt.Errorf("publish record %s: %w", rec.ID, err)
		}
		if (i+1)%500 == 0 {
			logger.Info("seed progress", slog.Int("published", i+1), slog.Int("total", count))
		}
	}
	return count, nil
}
