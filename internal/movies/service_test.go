package movies

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUpsertMovieMergesFieldsAndKeepsReferralID(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	first, err := service.UpsertMovie(ctx, Movie{
		Name:        "The Departed",
		Engine:      "netnaija",
		Description: "crime drama",
		Size:        "1.2GB",
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.ReferralID == "" {
		t.Fatal("expected referral id to be assigned on insert")
	}

	second, err := service.UpsertMovie(ctx, Movie{
		Name:         "The Departed",
		Engine:       "netnaija",
		Size:         "2.4GB",
		DownloadLink: "https://example.com/departed.mkv",
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected single row, got ids %d and %d", first.ID, second.ID)
	}
	if second.ReferralID != first.ReferralID {
		t.Fatalf("referral id changed across upserts: %q -> %q", first.ReferralID, second.ReferralID)
	}
	if second.Size != "2.4GB" {
		t.Fatalf("expected incoming size to overwrite, got %q", second.Size)
	}
	if second.Description != "crime drama" {
		t.Fatalf("expected missing description to preserve existing value, got %q", second.Description)
	}
	if second.DownloadLink != "https://example.com/departed.mkv" {
		t.Fatalf("expected download link to be set, got %q", second.DownloadLink)
	}

	var count int64
	if err := db.Model(&Movie{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one movie row, got %d", count)
	}
}

func TestUpsertMovieAssignsReferralIDLazilyOnMerge(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	// Row created outside the ingestion path carries no referral id.
	seeded := Movie{Name: "Inception", Engine: "fzmovies"}
	if err := db.Create(&seeded).Error; err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	merged, err := service.UpsertMovie(ctx, Movie{Name: "Inception", Engine: "fzmovies", Year: "2010"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if merged.ID != seeded.ID {
		t.Fatalf("expected merge into seeded row %d, got %d", seeded.ID, merged.ID)
	}
	if merged.ReferralID == "" {
		t.Fatal("expected lazy referral id assignment during merge")
	}

	again, err := service.UpsertMovie(ctx, Movie{Name: "Inception", Engine: "fzmovies", Quality: "HD"})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if again.ReferralID != merged.ReferralID {
		t.Fatalf("referral id regenerated: %q -> %q", merged.ReferralID, again.ReferralID)
	}
}

func TestRateMovieOverwritesScore(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	movie, err := service.UpsertMovie(ctx, Movie{Name: "Heat", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if _, err := service.RateMovie(ctx, movie.ReferralID, "10.0.0.1", "", 3); err != nil {
		t.Fatalf("first rating failed: %v", err)
	}
	rating, err := service.RateMovie(ctx, movie.ReferralID, "10.0.0.1", "", 5)
	if err != nil {
		t.Fatalf("second rating failed: %v", err)
	}
	if rating.Score != 5 {
		t.Fatalf("expected score 5 after overwrite, got %d", rating.Score)
	}

	var count int64
	if err := db.Model(&Rating{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one rating row, got %d", count)
	}
}

func TestRateMovieRejectsOutOfRangeScore(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	movie, err := service.UpsertMovie(ctx, Movie{Name: "Memento", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	for _, score := range []int{-1, 6} {
		if _, err := service.RateMovie(ctx, movie.ReferralID, "10.0.0.1", "", score); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("expected ErrInvalidScore for %d, got %v", score, err)
		}
	}
}

func TestRatingIdentityModes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ipService, err := NewService(ServiceConfig{
		Database:     db,
		IDProvider:   &sequenceIDProvider{},
		IdentityMode: IdentityIP,
	})
	if err != nil {
		t.Fatalf("failed to build ip service: %v", err)
	}

	movie, err := ipService.UpsertMovie(ctx, Movie{Name: "Dune", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// In ip mode the authenticated user shares the slot of their address.
	if _, err := ipService.RateMovie(ctx, movie.ReferralID, "10.0.0.9", "", 2); err != nil {
		t.Fatalf("anonymous rating failed: %v", err)
	}
	if _, err := ipService.RateMovie(ctx, movie.ReferralID, "10.0.0.9", "user-7", 4); err != nil {
		t.Fatalf("authenticated rating failed: %v", err)
	}
	var count int64
	if err := db.Model(&Rating{}).Where("movie_id = ?", movie.ID).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one rating row in ip mode, got %d", count)
	}

	userService, err := NewService(ServiceConfig{
		Database:     db,
		IDProvider:   &sequenceIDProvider{},
		IdentityMode: IdentityIPUser,
	})
	if err != nil {
		t.Fatalf("failed to build ip_user service: %v", err)
	}
	if _, err := userService.RateMovie(ctx, movie.ReferralID, "10.0.0.9", "user-7", 5); err != nil {
		t.Fatalf("ip_user rating failed: %v", err)
	}
	if err := db.Model(&Rating{}).Where("movie_id = ?", movie.ID).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected a distinct row per identity in ip_user mode, got %d", count)
	}
}

func TestAverageRating(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	movie, err := service.UpsertMovie(ctx, Movie{Name: "Arrival", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	empty, err := service.AverageRating(ctx, movie.ReferralID)
	if err != nil {
		t.Fatalf("average on unrated movie failed: %v", err)
	}
	if empty.AverageRatings != 0 || empty.By != 0 {
		t.Fatalf("expected {0, 0} for unrated movie, got %+v", empty)
	}

	ratings := map[string]int{"10.0.0.1": 2, "10.0.0.2": 4, "10.0.0.3": 3}
	for ip, score := range ratings {
		if _, err := service.RateMovie(ctx, movie.ReferralID, ip, "", score); err != nil {
			t.Fatalf("rating failed: %v", err)
		}
	}

	average, err := service.AverageRating(ctx, movie.ReferralID)
	if err != nil {
		t.Fatalf("average failed: %v", err)
	}
	if average.AverageRatings != 3.0 || average.By != 3 {
		t.Fatalf("expected {3.0, 3}, got %+v", average)
	}
}

func TestListByEngineOrdersPagesByRecency(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	// Page 2 is ingested first but back-dated further, so it must sort behind
	// every page 1 item.
	for _, name := range []string{"Old A", "Old B"} {
		if _, err := service.UpsertMovie(ctx, Movie{
			Name: name, Engine: "netnaija", DateCreated: now.AddDate(0, 0, -2),
		}); err != nil {
			t.Fatalf("page 2 upsert failed: %v", err)
		}
	}
	for _, name := range []string{"New A", "New B"} {
		if _, err := service.UpsertMovie(ctx, Movie{
			Name: name, Engine: "netnaija", DateCreated: now.AddDate(0, 0, -1),
		}); err != nil {
			t.Fatalf("page 1 upsert failed: %v", err)
		}
	}

	listed, err := service.ListByEngine(ctx, "NETNAIJA", 1, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 4 {
		t.Fatalf("expected 4 movies, got %d", len(listed))
	}
	for _, movie := range listed[:2] {
		if movie.Name != "New A" && movie.Name != "New B" {
			t.Fatalf("expected page 1 items first, got %q", movie.Name)
		}
	}
	for _, movie := range listed[2:] {
		if movie.Name != "Old A" && movie.Name != "Old B" {
			t.Fatalf("expected page 2 items last, got %q", movie.Name)
		}
	}
}

func TestSearchByNameMatchesCaseInsensitiveSubstring(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	for _, name := range []string{"Hello World", "Say Hello Again", "Goodbye"} {
		if _, err := service.UpsertMovie(ctx, Movie{Name: name, Engine: "netnaija"}); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	if _, err := service.UpsertMovie(ctx, Movie{Name: "Hello Elsewhere", Engine: "fzmovies"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	found, err := service.SearchByName(ctx, "netnaija", "HELLO", 1, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches restricted to the engine, got %d", len(found))
	}
}

func TestHighestDownloadsWindow(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, db, func() time.Time { return now })
	ctx := context.Background()

	movie, err := service.UpsertMovie(ctx, Movie{Name: "Tenet", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	for _, age := range []time.Duration{2 * time.Hour, 25 * time.Hour, 100 * time.Hour} {
		event := Download{MovieID: movie.ID, IPAddress: "10.0.0.1", OccurredAt: now.Add(-age)}
		if err := db.Create(&event).Error; err != nil {
			t.Fatalf("seed download failed: %v", err)
		}
	}

	top, err := service.HighestDownloads(ctx, DownloadFilter{FilterBy: FilterByHours, FilterNum: 24, Top: 5})
	if err != nil {
		t.Fatalf("highest downloads failed: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("expected one movie in window, got %d", len(top))
	}
	if top[0].Downloads != 1 {
		t.Fatalf("expected count 1 inside 24h window, got %d", top[0].Downloads)
	}

	wide, err := service.HighestDownloads(ctx, DownloadFilter{FilterBy: FilterByDays, FilterNum: 7, Top: 5})
	if err != nil {
		t.Fatalf("highest downloads failed: %v", err)
	}
	if wide[0].Downloads != 3 {
		t.Fatalf("expected count 3 inside 7d window, got %d", wide[0].Downloads)
	}
}

func TestHighestDownloadsExcludesQuietMovies(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	service := newTestService(t, db, func() time.Time { return now })
	ctx := context.Background()

	if _, err := service.UpsertMovie(ctx, Movie{Name: "Quiet", Engine: "netnaija"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	top, err := service.HighestDownloads(ctx, DownloadFilter{FilterBy: FilterByHours, FilterNum: 24, Top: 5})
	if err != nil {
		t.Fatalf("highest downloads failed: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("expected no entries without downloads, got %d", len(top))
	}
}

func TestHighestDownloadsRejectsUnknownUnit(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)

	_, err := service.HighestDownloads(context.Background(), DownloadFilter{FilterBy: "months", FilterNum: 1, Top: 5})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestDownloadAndReferralEventsAccumulate(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	movie, err := service.UpsertMovie(ctx, Movie{Name: "Alien", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := service.RecordDownload(ctx, movie.ReferralID, "10.0.0.1"); err != nil {
			t.Fatalf("download %d failed: %v", i, err)
		}
	}
	if _, err := service.RecordReferral(ctx, movie.ReferralID, "10.0.0.1"); err != nil {
		t.Fatalf("referral failed: %v", err)
	}

	downloads, err := service.DownloadCount(ctx, movie.ReferralID)
	if err != nil {
		t.Fatalf("download count failed: %v", err)
	}
	if downloads != 3 {
		t.Fatalf("expected 3 downloads (no dedup), got %d", downloads)
	}

	referrals, err := service.ReferralCount(ctx, movie.ReferralID)
	if err != nil {
		t.Fatalf("referral count failed: %v", err)
	}
	if referrals != 1 {
		t.Fatalf("expected 1 referral, got %d", referrals)
	}
}

func TestUnknownReferralIDIsNotFound(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	if _, err := service.GetByReferralID(ctx, "missing"); !errors.Is(err, ErrMovieNotFound) {
		t.Fatalf("expected ErrMovieNotFound from lookup, got %v", err)
	}
	if _, err := service.RecordDownload(ctx, "missing", "10.0.0.1"); !errors.Is(err, ErrMovieNotFound) {
		t.Fatalf("expected ErrMovieNotFound from download, got %v", err)
	}
	if _, err := service.RateMovie(ctx, "missing", "10.0.0.1", "", 4); !errors.Is(err, ErrMovieNotFound) {
		t.Fatalf("expected ErrMovieNotFound from rating, got %v", err)
	}
}

func TestRatingForUnratedIdentity(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, nil)
	ctx := context.Background()

	movie, err := service.UpsertMovie(ctx, Movie{Name: "Solaris", Engine: "netnaija"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if _, err := service.RatingFor(ctx, movie.ReferralID, "10.0.0.1", ""); !errors.Is(err, ErrRatingNotFound) {
		t.Fatalf("expected ErrRatingNotFound, got %v", err)
	}
}
