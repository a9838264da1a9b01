package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"MindTrack/pkg/config"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "mindtrack.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db.Store()
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEventsRangeOrderingAndOwnership(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		e := &model.HealthEvent{UserID: "u1", EventType: "migraine", Intensity: 5, StartedAt: base.Add(time.Duration(i) * 24 * time.Hour)}
		if err := store.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		ids = append(ids, e.ID)
	}
	other := &model.HealthEvent{UserID: "u2", EventType: "migraine", Intensity: 5, StartedAt: base}
	if err := store.CreateEvent(ctx, other); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	events, err := store.ListEventsByRange(ctx, "u1", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListEventsByRange: %v", err)
	}
	if len(events) != 2 || events[0].ID != ids[1] || events[1].ID != ids[0] {
		t.Errorf("range result: %+v", events)
	}

	latest, err := store.ListEvents(ctx, "u1", 1)
	if err != nil || len(latest) != 1 || latest[0].ID != ids[2] {
		t.Errorf("ListEvents: %v %+v", err, latest)
	}

	count, err := store.CountEventsSince(ctx, "u1", base.Add(time.Hour))
	if err != nil || count != 2 {
		t.Errorf("CountEventsSince: %d %v", count, err)
	}

	if err := store.DeleteEvent(ctx, "u2", ids[0]); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("foreign delete: %v", err)
	}
	if err := store.DeleteEvent(ctx, "u1", ids[0]); err != nil {
		t.Errorf("DeleteEvent: %v", err)
	}

	users, err := store.ActiveUsersSince(ctx, base)
	if err != nil || len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("ActiveUsersSince: %v %v", users, err)
	}
}

func TestEventListsKeepSerializedColumns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sleep := 5.5
	e := &model.HealthEvent{
		UserID: "u1", EventType: "seizure", Intensity: 7,
		PreSymptoms: []string{"aura"}, RecentFood: []string{"coffee", "cheese"},
		SleepHours: &sleep, StartedAt: time.Now(),
	}
	if err := store.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	events, err := store.ListEvents(ctx, "u1", 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("ListEvents: %v %d", err, len(events))
	}
	got := events[0]
	if len(got.RecentFood) != 2 || got.RecentFood[1] != "cheese" || got.SleepHours == nil || *got.SleepHours != 5.5 {
		t.Errorf("round trip: %+v", got)
	}
}

func TestCheckinUniquePerTypePerDay(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &model.DailyCheckin{UserID: "u1", CheckinDate: "2024-03-10", CheckinType: model.CheckinMorning, Mood: 3}
	if err := store.CreateCheckin(ctx, first); err != nil {
		t.Fatalf("CreateCheckin: %v", err)
	}
	dup := &model.DailyCheckin{UserID: "u1", CheckinDate: "2024-03-10", CheckinType: model.CheckinMorning, Mood: 4}
	if err := store.CreateCheckin(ctx, dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	evening := &model.DailyCheckin{UserID: "u1", CheckinDate: "2024-03-10", CheckinType: model.CheckinEvening, Mood: 2}
	if err := store.CreateCheckin(ctx, evening); err != nil {
		t.Fatalf("evening checkin: %v", err)
	}
	older := &model.DailyCheckin{UserID: "u1", CheckinDate: "2024-03-01", CheckinType: model.CheckinMorning, Mood: 5}
	if err := store.CreateCheckin(ctx, older); err != nil {
		t.Fatalf("older checkin: %v", err)
	}

	today, err := store.CheckinsOn(ctx, "u1", "2024-03-10")
	if err != nil || len(today) != 2 {
		t.Errorf("CheckinsOn: %v %d", err, len(today))
	}

	ranged, err := store.ListCheckinsByRange(ctx, "u1", "2024-03-01", "2024-03-10")
	if err != nil || len(ranged) != 3 || ranged[2].CheckinDate != "2024-03-01" {
		t.Errorf("ListCheckinsByRange: %v %+v", err, ranged)
	}
}

func TestInsightLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := &model.AIInsight{UserID: "u1", InsightText: "old", InsightType: model.InsightTypeFullAnalysis, GeneratedAt: now.Add(-time.Hour), RawAnalysis: []byte(`{"v":1}`)}
	newer := &model.AIInsight{UserID: "u1", InsightText: "new", InsightType: model.InsightTypeFullAnalysis, GeneratedAt: now, RawAnalysis: []byte(`{"v":2}`)}
	local := &model.AIInsight{UserID: "u1", InsightText: "food", InsightType: model.CorrelationFood, GeneratedAt: now.Add(-time.Minute)}
	if err := store.CreateInsights(ctx, []*model.AIInsight{older, newer, local}); err != nil {
		t.Fatalf("CreateInsights: %v", err)
	}

	latest, err := store.LatestInsightByType(ctx, "u1", model.InsightTypeFullAnalysis)
	if err != nil || latest.ID != newer.ID || string(latest.RawAnalysis) != `{"v":2}` {
		t.Fatalf("LatestInsightByType: %v %+v", err, latest)
	}
	if _, err := store.LatestInsightByType(ctx, "u2", model.InsightTypeFullAnalysis); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	if err := store.MarkInsightRead(ctx, "u1", local.ID); err != nil {
		t.Fatalf("MarkInsightRead: %v", err)
	}
	if err := store.DismissInsight(ctx, "u2", local.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("foreign dismiss: %v", err)
	}
	if err := store.DismissInsight(ctx, "u1", older.ID); err != nil {
		t.Fatalf("DismissInsight: %v", err)
	}

	list, err := store.ListInsights(ctx, "u1", 20)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListInsights: %v %d", err, len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != local.ID || !list[1].IsRead {
		t.Errorf("list order/flags: %+v", list)
	}
}

func TestUsersAndDeleteUserData(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user := &model.User{Email: "dana@example.com", PasswordHash: "hash", Locale: "he"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.CreateUser(ctx, &model.User{Email: "dana@example.com", PasswordHash: "x"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("want ErrDuplicate, got %v", err)
	}

	if err := store.UpdateProfile(ctx, user.ID, map[string]interface{}{"display_name": "Dana", "locale": "en"}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if err := store.UpdatePassword(ctx, user.ID, "hash2"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := store.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}
	if err := store.UpdatePassword(ctx, "missing", "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "dana@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.DisplayName != "Dana" || got.Locale != "en" || got.PasswordHash != "hash2" || got.LastLoginAt == nil {
		t.Errorf("user: %+v", got)
	}

	if err := store.CreateEvent(ctx, &model.HealthEvent{UserID: user.ID, EventType: "x", Intensity: 3, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateCheckin(ctx, &model.DailyCheckin{UserID: user.ID, CheckinDate: "2024-03-10", CheckinType: model.CheckinMorning, Mood: 3}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateInsights(ctx, []*model.AIInsight{{UserID: user.ID, InsightText: "t", InsightType: model.CorrelationDay}}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteUserData(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUserData: %v", err)
	}
	if n, _ := store.CountEventsSince(ctx, user.ID, time.Time{}); n != 0 {
		t.Errorf("events left: %d", n)
	}
	if c, _ := store.ListCheckinsByRange(ctx, user.ID, "2000-01-01", "2100-01-01"); len(c) != 0 {
		t.Errorf("checkins left: %d", len(c))
	}
	if l, _ := store.ListInsights(ctx, user.ID, 0); len(l) != 0 {
		t.Errorf("insights left: %d", len(l))
	}
	if _, err := store.GetUserByID(ctx, user.ID); err != nil {
		t.Errorf("account must survive data deletion: %v", err)
	}
}
