package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
	"github.com/tbourn/go-waitlist-backend/internal/repo"
	"github.com/tbourn/go-waitlist-backend/internal/validation"
	"github.com/tbourn/go-waitlist-backend/internal/webhook"
)

// fakeDispatcher observes dispatch decisions without network traffic.
type fakeDispatcher struct {
	configured bool
	attempts   int // attempts simulated per Send (onAttempt invocations)
	sends      int
	err        error
}

func (f *fakeDispatcher) Configured() bool { return f.configured }

func (f *fakeDispatcher) Send(ctx context.Context, _ any, onAttempt func(context.Context) error) error {
	f.sends++
	n := f.attempts
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if onAttempt != nil {
			if err := onAttempt(ctx); err != nil {
				return err
			}
		}
	}
	return f.err
}

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Submission{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newSvc(t *testing.T, d Dispatcher) (*IntakeService, *gorm.DB) {
	t.Helper()
	db := newSvcDB(t)
	return &IntakeService{
		DB:             db,
		Validator:      validation.New(),
		Dispatcher:     d,
		EmailLimit:     5,
		Window:         time.Hour,
		MaxRetries:     2,
		KeyGranularity: time.Minute,
	}, db
}

func validSubmission() validation.SubmissionRequest {
	return validation.SubmissionRequest{
		FullName:     "Asha Rao",
		EmailAddress: "asha@example.com",
		PhoneNumber:  "9876543210",
		City:         "Mumbai",
		UserType:     "customer",
	}
}

func TestSubmit_DeliversAndRecordsSent(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, db := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	res, err := svc.Submit(context.Background(), validSubmission(), now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res != ResultDelivered {
		t.Fatalf("expected ResultDelivered, got %v", res)
	}
	if fd.sends != 1 {
		t.Fatalf("expected one dispatch, got %d", fd.sends)
	}

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	rec, err := repo.GetSubmission(context.Background(), db, key)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != domain.StatusSent {
		t.Fatalf("expected sent, got %s", rec.Status)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", rec.AttemptCount)
	}
}

func TestSubmit_SameKeyReplaysWithoutDispatch(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, _ := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := svc.Submit(context.Background(), validSubmission(), now); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := svc.Submit(context.Background(), validSubmission(), now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("replay submit: %v", err)
	}
	if res != ResultReplayed {
		t.Fatalf("expected ResultReplayed, got %v", res)
	}
	if fd.sends != 1 {
		t.Fatalf("replay must not dispatch again, got %d sends", fd.sends)
	}
}

func TestSubmit_ValidationStopsPipeline(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, _ := newSvc(t, fd)

	raw := validSubmission()
	raw.EmailAddress = "not-an-email"

	_, err := svc.Submit(context.Background(), raw, time.Now().UTC())
	var fe *validation.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldError, got %v", err)
	}
	if fe.Field != "emailAddress" {
		t.Fatalf("expected emailAddress, got %q", fe.Field)
	}
	if fd.sends != 0 {
		t.Fatal("invalid submission must not reach the dispatcher")
	}
}

func TestSubmit_SixthWithinWindowRateLimited(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, _ := newSvc(t, fd)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Five distinct submissions (separate key buckets) inside one hour.
	for i := 0; i < 5; i++ {
		now := base.Add(time.Duration(i) * 2 * time.Minute)
		if _, err := svc.Submit(context.Background(), validSubmission(), now); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	_, err := svc.Submit(context.Background(), validSubmission(), base.Add(20*time.Minute))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on 6th submission, got %v", err)
	}
	if fd.sends != 5 {
		t.Fatalf("rate-limited submission must not dispatch, got %d sends", fd.sends)
	}
}

func TestSubmit_WindowRollsOver(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, _ := newSvc(t, fd)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		now := base.Add(time.Duration(i) * 2 * time.Minute)
		if _, err := svc.Submit(context.Background(), validSubmission(), now); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	// One hour past the first submission only that one has aged out, leaving
	// four in the window.
	if _, err := svc.Submit(context.Background(), validSubmission(), base.Add(time.Hour+time.Minute)); err != nil {
		t.Fatalf("expected submission after rollover to pass, got %v", err)
	}
}

func TestSubmit_DeliveryFailureMarksFailed(t *testing.T) {
	fd := &fakeDispatcher{
		configured: true,
		attempts:   2,
		err:        &webhook.DeliveryError{StatusCode: 500, Reason: "status 500: boom"},
	}
	svc, db := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Submit(context.Background(), validSubmission(), now)
	var derr *webhook.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	rec, gerr := repo.GetSubmission(context.Background(), db, key)
	if gerr != nil {
		t.Fatalf("get record: %v", gerr)
	}
	if rec.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
	if rec.AttemptCount != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", rec.AttemptCount)
	}
}

func TestSubmit_PendingWithSpentBudgetShortCircuits(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, db := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	if _, err := repo.ClaimSubmission(ctx, db, key, "asha@example.com", "{}", now); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := repo.IncrementAttempt(ctx, db, key); err != nil {
			t.Fatalf("seed increment: %v", err)
		}
	}

	_, err := svc.Submit(ctx, validSubmission(), now)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if fd.sends != 0 {
		t.Fatal("exhausted key must not dispatch")
	}
}

func TestSubmit_FailedRecordRedispatches(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, db := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	if _, err := repo.ClaimSubmission(ctx, db, key, "asha@example.com", "{}", now); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	if err := repo.UpdateStatus(ctx, db, key, domain.StatusFailed); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	res, err := svc.Submit(ctx, validSubmission(), now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res != ResultDelivered || fd.sends != 1 {
		t.Fatalf("failed record should re-dispatch, got res=%v sends=%d", res, fd.sends)
	}

	rec, err := repo.GetSubmission(ctx, db, key)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != domain.StatusSent {
		t.Fatalf("expected sent after recovery, got %s", rec.Status)
	}
}

// gateDispatcher parks inside Send until released, so a test can hold one
// request mid-dispatch while a duplicate races it.
type gateDispatcher struct {
	sends   int32
	release chan struct{}
}

func (g *gateDispatcher) Configured() bool { return true }

func (g *gateDispatcher) Send(ctx context.Context, _ any, onAttempt func(context.Context) error) error {
	atomic.AddInt32(&g.sends, 1)
	if onAttempt != nil {
		if err := onAttempt(ctx); err != nil {
			return err
		}
	}
	<-g.release
	return nil
}

type submitOutcome struct {
	res Result
	err error
}

// raceSubmit runs two Submits for the same logical request concurrently. The
// winner parks inside the gated dispatcher, so the first outcome to arrive is
// always the loser's.
func raceSubmit(svc *IntakeService, now time.Time) chan submitOutcome {
	results := make(chan submitOutcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := svc.Submit(context.Background(), validSubmission(), now)
			results <- submitOutcome{res, err}
		}()
	}
	return results
}

func TestSubmit_ConcurrentDuplicatesFreshKey(t *testing.T) {
	gd := &gateDispatcher{release: make(chan struct{})}
	svc, db := newSvc(t, gd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	results := raceSubmit(svc, now)

	loser := <-results
	if !errors.Is(loser.err, ErrInFlight) {
		t.Fatalf("losing duplicate should get ErrInFlight, got (%v, %v)", loser.res, loser.err)
	}
	close(gd.release)
	winner := <-results
	if winner.err != nil || winner.res != ResultDelivered {
		t.Fatalf("winning request should deliver, got (%v, %v)", winner.res, winner.err)
	}
	if n := atomic.LoadInt32(&gd.sends); n != 1 {
		t.Fatalf("one key must dispatch at most once, got %d sends", n)
	}

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	rec, err := repo.GetSubmission(context.Background(), db, key)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != domain.StatusSent {
		t.Fatalf("expected sent, got %s", rec.Status)
	}
}

func TestSubmit_ConcurrentDuplicatesOnFailedRecord(t *testing.T) {
	gd := &gateDispatcher{release: make(chan struct{})}
	svc, db := newSvc(t, gd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	if _, err := repo.ClaimSubmission(ctx, db, key, "asha@example.com", "{}", now); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	if err := repo.UpdateStatus(ctx, db, key, domain.StatusFailed); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	results := raceSubmit(svc, now)

	loser := <-results
	if !errors.Is(loser.err, ErrInFlight) {
		t.Fatalf("losing duplicate should get ErrInFlight, got (%v, %v)", loser.res, loser.err)
	}
	close(gd.release)
	winner := <-results
	if winner.err != nil || winner.res != ResultDelivered {
		t.Fatalf("winning request should deliver, got (%v, %v)", winner.res, winner.err)
	}
	if n := atomic.LoadInt32(&gd.sends); n != 1 {
		t.Fatalf("failed record must be re-dispatched exactly once, got %d sends", n)
	}

	rec, err := repo.GetSubmission(ctx, db, key)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != domain.StatusSent {
		t.Fatalf("expected sent after recovery, got %s", rec.Status)
	}
}

func TestSubmit_RecentPendingTreatedAsInFlight(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, db := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	if _, err := repo.ClaimSubmission(ctx, db, key, "asha@example.com", "{}", now); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	_, err := svc.Submit(ctx, validSubmission(), now)
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight for a fresh pending record, got %v", err)
	}
	if fd.sends != 0 {
		t.Fatal("an in-flight key must not dispatch again")
	}
}

func TestSubmit_StalePendingReclaimedAndRedispatched(t *testing.T) {
	fd := &fakeDispatcher{configured: true}
	svc, db := newSvc(t, fd)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// A pending record untouched for well past the grace window is a crashed
	// dispatch, not an in-flight one.
	key := domain.IdempotencyKey("asha@example.com", now, time.Minute)
	if _, err := repo.ClaimSubmission(ctx, db, key, "asha@example.com", "{}", now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	res, err := svc.Submit(ctx, validSubmission(), now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res != ResultDelivered || fd.sends != 1 {
		t.Fatalf("stale pending record should re-dispatch, got res=%v sends=%d", res, fd.sends)
	}

	rec, err := repo.GetSubmission(ctx, db, key)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != domain.StatusSent {
		t.Fatalf("expected sent after recovery, got %s", rec.Status)
	}
}

func TestSubmit_UnconfiguredDispatcher(t *testing.T) {
	fd := &fakeDispatcher{configured: false}
	svc, _ := newSvc(t, fd)

	_, err := svc.Submit(context.Background(), validSubmission(), time.Now().UTC())
	if !errors.Is(err, webhook.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
