package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"confwaitlist/internal/conferences"
	"confwaitlist/internal/shared/config"
	"confwaitlist/internal/shared/database"
	"confwaitlist/internal/users"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("seeding confwaitlist database...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("failed to clean database: %v", err)
	}

	fmt.Println("seeding data...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}

	fmt.Println("done")
}

// CleanDatabase truncates every table in dependency order.
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"bookings",
		"conference_topics",
		"conferences",
		"user_interests",
		"users",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds a handful of users and conferences, some small enough
// to exercise the waitlist path immediately.
func (s *Seeder) SeedAll() error {
	ctx := context.Background()

	if err := s.SeedUsers(ctx); err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	if err := s.SeedConferences(ctx); err != nil {
		return fmt.Errorf("failed to seed conferences: %w", err)
	}

	return nil
}

func (s *Seeder) SeedUsers(ctx context.Context) error {
	repo := users.NewRepository(s.db.PostgreSQL)

	usersData := []struct {
		id     string
		topics []string
	}{
		{"alice01", []string{"distributed systems", "databases"}},
		{"bob02", []string{"networking"}},
		{"carol03", []string{"machine learning", "ethics"}},
		{"dave04", []string{"security"}},
		{"erin05", nil},
	}

	for _, u := range usersData {
		if err := repo.CreateUser(ctx, u.id, u.topics); err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.id, err)
		}
		fmt.Printf("  created user: %s\n", u.id)
	}

	return nil
}

func (s *Seeder) SeedConferences(ctx context.Context) error {
	repo := conferences.NewRepository(s.db.PostgreSQL)
	now := time.Now().UTC()

	confsData := []struct {
		name     string
		location string
		start    time.Time
		end      time.Time
		slots    int
		topics   []string
	}{
		{
			name:     "PyConf2026",
			location: "Austin",
			start:    now.AddDate(0, 0, 30),
			end:      now.AddDate(0, 0, 30).Add(8 * time.Hour),
			slots:    2,
			topics:   []string{"python", "distributed systems"},
		},
		{
			name:     "GoSummit2026",
			location: "Berlin",
			start:    now.AddDate(0, 0, 45),
			end:      now.AddDate(0, 0, 45).Add(8 * time.Hour),
			slots:    50,
			topics:   []string{"go", "networking"},
		},
		{
			name:     "DataEthicsForum",
			location: "Toronto",
			start:    now.AddDate(0, 0, 10),
			end:      now.AddDate(0, 0, 10).Add(8 * time.Hour),
			slots:    1,
			topics:   []string{"machine learning", "ethics"},
		},
	}

	for _, c := range confsData {
		req := conferences.CreateConferenceRequest{
			Name:     c.name,
			Location: c.location,
			Start:    c.start.Format(conferences.TimestampLayout),
			End:      c.end.Format(conferences.TimestampLayout),
			Slots:    c.slots,
			Topics:   c.topics,
		}
		if _, err := repo.CreateConference(ctx, req); err != nil {
			return fmt.Errorf("failed to create conference %s: %w", c.name, err)
		}
		fmt.Printf("  created conference: %s (%d slots)\n", c.name, c.slots)
	}

	return nil
}
