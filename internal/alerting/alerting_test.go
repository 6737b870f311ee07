package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"availwatch/internal/detector"
	"availwatch/internal/status"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type delivery struct {
	alert Alert
	at    time.Time
}

type recorder struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	deliveries []delivery
	interrupts []string
	failKeys   map[string]bool
	interErr   error
}

func (r *recorder) Deliver(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failKeys[alert.Key] {
		return errors.New("permission denied")
	}
	r.deliveries = append(r.deliveries, delivery{alert: alert, at: r.clock.Now()})
	return nil
}

func (r *recorder) Interrupt(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupts = append(r.interrupts, message)
	return r.interErr
}

func (r *recorder) snapshot() ([]delivery, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.deliveries...), append([]string(nil), r.interrupts...)
}

// drain advances the fake clock until every plan of esc has finished.
func drain(t *testing.T, clock clockwork.FakeClock, esc *Escalator) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		esc.Wait()
		close(done)
	}()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("escalation plan 未在期限内完成")
		default:
			clock.Advance(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

// stallingDeliverer blocks one alert key until released.
type stallingDeliverer struct {
	next    Deliverer
	key     string
	entered chan struct{}
	release chan struct{}
}

func (s *stallingDeliverer) Deliver(ctx context.Context, alert Alert) error {
	if alert.Key == s.key {
		close(s.entered)
		<-s.release
	}
	return s.next.Deliver(ctx, alert)
}

func episode(count int, urgent bool) detector.Episode {
	ep, ok := detector.Detect(status.NotAvailable, status.PreorderAvailable, count, urgent)
	if !ok {
		panic("expected episode")
	}
	return ep
}

func TestBuildPlanStandardOnly(t *testing.T) {
	steps := BuildPlan(episode(3, false), DefaultOptions(), Content{ProductName: "Steam Frame", StoreURL: "https://store"})
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	for i, step := range steps {
		if step.Kind != StepStandard {
			t.Fatalf("step %d kind %s", i, step.Kind)
		}
		if step.Offset != time.Duration(i)*800*time.Millisecond {
			t.Fatalf("step %d offset %s", i, step.Offset)
		}
		wantLabel := []string{"1/3", "2/3", "3/3"}[i]
		if step.Alert.Label != wantLabel {
			t.Fatalf("step %d label %q", i, step.Alert.Label)
		}
		if step.Alert.ActionTarget != "https://store" || !step.Alert.AutoDismiss {
			t.Fatalf("standard alerts must be actionable and auto-dismissing: %+v", step.Alert)
		}
		if step.Alert.Title != "Steam Frame Pre-order Available!" {
			t.Fatalf("unexpected title %q", step.Alert.Title)
		}
	}
}

func TestBuildPlanUrgentTier(t *testing.T) {
	steps := BuildPlan(episode(2, true), DefaultOptions(), Content{ProductName: "Steam Frame"})

	var standard, urgent, interrupt int
	keys := make(map[string]bool)
	var urgentOffsets []time.Duration
	for _, step := range steps {
		if keys[step.Alert.Key] {
			t.Fatalf("duplicate key %s", step.Alert.Key)
		}
		keys[step.Alert.Key] = true
		switch step.Kind {
		case StepStandard:
			standard++
		case StepUrgent:
			urgent++
			urgentOffsets = append(urgentOffsets, step.Offset)
			if step.Alert.Priority != PriorityMax || !step.Alert.Urgent {
				t.Fatalf("urgent alert priority wrong: %+v", step.Alert)
			}
		case StepInterrupt:
			interrupt++
			if step.Offset != 0 {
				t.Fatalf("interrupt should be immediate, got %s", step.Offset)
			}
		}
	}
	if standard != 2 || urgent != 3 || interrupt != 1 {
		t.Fatalf("unexpected tier sizes standard=%d urgent=%d interrupt=%d", standard, urgent, interrupt)
	}
	want := []time.Duration{0, 5 * time.Second, 10 * time.Second}
	for i := range want {
		if urgentOffsets[i] != want[i] {
			t.Fatalf("urgent offsets %v, want %v", urgentOffsets, want)
		}
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Offset < steps[i-1].Offset {
			t.Fatal("plan must be ordered by offset")
		}
	}
}

func TestBuildTestPlan(t *testing.T) {
	steps := BuildTestPlan("t1", 2, false, 10*time.Second, DefaultOptions(), Content{ProductName: "Steam Frame"})
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Offset != 10*time.Second || steps[1].Offset != 11*time.Second {
		t.Fatalf("unexpected offsets %s %s", steps[0].Offset, steps[1].Offset)
	}
	if !strings.HasPrefix(steps[0].Alert.Title, "TEST:") {
		t.Fatalf("test alerts must be TEST titled: %q", steps[0].Alert.Title)
	}
}

func TestEscalatorDeliversFullPlan(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{clock: clock}
	esc := NewEscalator(rec, rec, DefaultOptions(), Content{ProductName: "Steam Frame"}, clock, testLogger())

	start := clock.Now()
	esc.Escalate(context.Background(), episode(3, true))
	drain(t, clock, esc)

	deliveries, interrupts := rec.snapshot()
	var standard, urgent int
	for _, d := range deliveries {
		if d.alert.Urgent {
			urgent++
		} else {
			standard++
		}
	}
	if standard != 3 || urgent != 3 {
		t.Fatalf("expected 3 standard + 3 urgent, got %d + %d", standard, urgent)
	}
	if len(interrupts) != 1 {
		t.Fatalf("expected one hand-off, got %d", len(interrupts))
	}
	last := deliveries[len(deliveries)-1]
	if last.at.Sub(start) < 10*time.Second {
		t.Fatalf("last urgent delivery should wait 10s, got %s", last.at.Sub(start))
	}
}

func TestEscalatorSkipsFailedDeliveries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ep := episode(3, false)
	rec := &recorder{clock: clock, failKeys: map[string]bool{ep.ID + "/standard/2": true}}
	esc := NewEscalator(rec, nil, DefaultOptions(), Content{}, clock, testLogger())

	esc.Escalate(context.Background(), ep)
	drain(t, clock, esc)

	deliveries, _ := rec.snapshot()
	if len(deliveries) != 2 {
		t.Fatalf("单次失败不应中断后续投递, got %d deliveries", len(deliveries))
	}
	if deliveries[1].alert.Label != "3/3" {
		t.Fatalf("third alert should still go out, got %q", deliveries[1].alert.Label)
	}
}

func TestEscalatorSlowDeliveryDoesNotDelayLaterSteps(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ep := episode(3, false)
	rec := &recorder{clock: clock}
	slow := &stallingDeliverer{next: rec, key: ep.ID + "/standard/1", entered: make(chan struct{}), release: make(chan struct{})}
	esc := NewEscalator(slow, nil, DefaultOptions(), Content{}, clock, testLogger())

	start := clock.Now()
	esc.Escalate(context.Background(), ep)
	<-slow.entered

	for n := 1; n <= 2; n++ {
		clock.BlockUntil(1)
		clock.Advance(800 * time.Millisecond)
		deadline := time.Now().Add(2 * time.Second)
		for {
			if deliveries, _ := rec.snapshot(); len(deliveries) == n {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("第 %d 条后续通知被慢通道阻塞", n+1)
			}
			time.Sleep(time.Millisecond)
		}
	}

	deliveries, _ := rec.snapshot()
	if deliveries[0].alert.Label != "2/3" || deliveries[0].at.Sub(start) != 800*time.Millisecond {
		t.Fatalf("second alert should go out at +800ms, got %q at +%s", deliveries[0].alert.Label, deliveries[0].at.Sub(start))
	}
	if deliveries[1].alert.Label != "3/3" || deliveries[1].at.Sub(start) != 1600*time.Millisecond {
		t.Fatalf("third alert should go out at +1.6s, got %q at +%s", deliveries[1].alert.Label, deliveries[1].at.Sub(start))
	}

	close(slow.release)
	esc.Wait()
	deliveries, _ = rec.snapshot()
	if len(deliveries) != 3 || deliveries[2].alert.Label != "1/3" {
		t.Fatalf("the slow first alert should still be delivered: %+v", deliveries)
	}
}

func TestEscalatorHandOffFailureFallsBack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{clock: clock, interErr: errors.New("call rejected")}
	esc := NewEscalator(rec, rec, DefaultOptions(), Content{}, clock, testLogger())

	esc.Escalate(context.Background(), episode(1, true))
	drain(t, clock, esc)

	deliveries, _ := rec.snapshot()
	if len(deliveries) != 4 {
		t.Fatalf("urgent notifications must still go out, got %d", len(deliveries))
	}
}

func TestEscalatorIgnoresCallerCancellation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{clock: clock}
	esc := NewEscalator(rec, nil, DefaultOptions(), Content{}, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	esc.Escalate(ctx, episode(4, false))
	cancel()
	drain(t, clock, esc)

	deliveries, _ := rec.snapshot()
	if len(deliveries) != 4 {
		t.Fatalf("scheduled deliveries must not be cancelled, got %d", len(deliveries))
	}
}

func TestEscalatorTestPlanCancellable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{clock: clock}
	esc := NewEscalator(rec, nil, DefaultOptions(), Content{}, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	esc.Test(ctx, 3, false, 10*time.Second)
	cancel()
	drain(t, clock, esc)

	deliveries, _ := rec.snapshot()
	if len(deliveries) != 0 {
		t.Fatalf("cancelled test plan should deliver nothing, got %d", len(deliveries))
	}
}
