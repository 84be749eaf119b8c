package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nexus-bot/internal/clock"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const operator = int64(1)

type sent struct {
	chatID int64
	text   string
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []sent
	failOn map[int64]bool
}

func (s *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[chatID] {
		return errors.New("blocked by user")
	}
	s.sent = append(s.sent, sent{chatID, text})
	return nil
}

func (s *recordingSender) messages() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

func recipients(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	return ids
}

func newThrottler(t *testing.T, s Sender, clk clock.Clock) *Throttler {
	return New(context.Background(), s, clk, Config{
		Operator:   operator,
		Interval:   DefaultInterval,
		PauseEvery: DefaultPauseEvery,
		Pause:      DefaultPause,
	}, zaptest.NewLogger(t))
}

func TestPacing(t *testing.T) {
	clk := clock.Fake(time.Now())
	s := &recordingSender{}

	report := newThrottler(t, s, clk).Run(context.Background(), recipients(120), "hello")
	require.Equal(t, Report{Sent: 120, Total: 120}, report)

	var short, long int
	for _, d := range clk.Sleeps() {
		switch d {
		case DefaultInterval:
			short++
		case DefaultPause:
			long++
		default:
			t.Fatalf("unexpected sleep %s", d)
		}
	}
	require.Equal(t, 119, short)
	require.Equal(t, 2, long)

	// The long pauses follow the 50th and 100th sends.
	sleeps := clk.Sleeps()
	require.Equal(t, DefaultPause, sleeps[50])
	require.Equal(t, DefaultPause, sleeps[101])

	msgs := s.messages()
	require.Len(t, msgs, 121)
	require.Equal(t, sent{operator, "✅ Broadcast finished. Reached 120/120 users."}, msgs[120])
}

func TestNoPauseAfterLastSend(t *testing.T) {
	clk := clock.Fake(time.Now())
	report := newThrottler(t, &recordingSender{}, clk).Run(context.Background(), recipients(50), "x")

	require.Equal(t, 50, report.Sent)
	require.Len(t, clk.Sleeps(), 49)
}

func TestFailuresAreSkipped(t *testing.T) {
	clk := clock.Fake(time.Now())
	s := &recordingSender{failOn: map[int64]bool{101: true, 103: true}}

	report := newThrottler(t, s, clk).Run(context.Background(), recipients(5), "x")
	require.Equal(t, Report{Sent: 3, Total: 5}, report)
	require.Len(t, clk.Sleeps(), 4)

	msgs := s.messages()
	require.Equal(t, "✅ Broadcast finished. Reached 3/5 users.", msgs[len(msgs)-1].text)
}

func TestSummaryFailureIsSwallowed(t *testing.T) {
	s := &recordingSender{failOn: map[int64]bool{operator: true}}
	report := newThrottler(t, s, clock.Fake(time.Now())).Run(context.Background(), recipients(2), "x")
	require.Equal(t, 2, report.Sent)
	require.Len(t, s.messages(), 2)
}

func TestCancelStopsRunButReports(t *testing.T) {
	clk := clock.Fake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	clk.AfterSleep(func(time.Duration) {
		if len(clk.Sleeps()) == 3 {
			cancel()
		}
	})
	s := &recordingSender{}

	report := newThrottler(t, s, clk).Run(ctx, recipients(10), "x")
	require.Equal(t, Report{Sent: 3, Total: 10}, report)

	msgs := s.messages()
	require.Equal(t, sent{operator, "✅ Broadcast finished. Reached 3/10 users."}, msgs[len(msgs)-1])
}

func TestStartIsDetached(t *testing.T) {
	s := &recordingSender{}
	th := newThrottler(t, s, clock.Fake(time.Now()))

	th.Start(recipients(3), "hi")
	th.Wait()

	require.Len(t, s.messages(), 4)
}
