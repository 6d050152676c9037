package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatepass/internal/ticket/codec"
	"gatepass/internal/ticket/issue"
	"gatepass/internal/ticket/models"
	"gatepass/internal/ticket/store"
)

// fakeTransport serves scripted per-recipient error sequences and tracks
// concurrency so tests can assert the batch bound.
type fakeTransport struct {
	mu            sync.Mutex
	scripts       map[string][]error
	calls         int
	inFlight      int
	maxInFlight   int
	holdPerSend   time.Duration
	notConfigured bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{scripts: map[string][]error{}}
}

func (f *fakeTransport) script(to string, errs ...error) {
	f.scripts[to] = errs
}

func (f *fakeTransport) Configured() bool {
	return !f.notConfigured
}

func (f *fakeTransport) Send(_ context.Context, to, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	var next error
	if queue := f.scripts[to]; len(queue) > 0 {
		next, f.scripts[to] = queue[0], queue[1:]
	}
	hold := f.holdPerSend
	f.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if next != nil {
		return "", next
	}
	return "msg-" + to, nil
}

type BatcherSuite struct {
	suite.Suite
	transport *fakeTransport
	batcher   *Batcher
	ctx       context.Context
	event     models.Event
}

func TestBatcherSuite(t *testing.T) {
	suite.Run(t, new(BatcherSuite))
}

func (s *BatcherSuite) SetupTest() {
	s.transport = newFakeTransport()
	s.batcher = s.newBatcher(s.transport)
	s.ctx = context.Background()
	s.event = models.Event{ID: "e1", Name: "Launch Party"}
}

func (s *BatcherSuite) newBatcher(transport Transport) *Batcher {
	c, err := codec.New("dispatch-test-secret")
	s.Require().NoError(err)

	tiered, err := store.New(
		store.NewInMemoryBackend(models.TierRemote),
		store.NewInMemoryBackend(models.TierLocal),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	issuer, err := issue.New(c, tiered, "https://tickets.example.com",
		issue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	batcher, err := New(issuer, transport,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	return batcher
}

func guests(n int) []models.Guest {
	out := make([]models.Guest, n)
	for i := range out {
		out[i] = models.Guest{
			ID:    fmt.Sprintf("g%d", i+1),
			Name:  fmt.Sprintf("Guest %d", i+1),
			Email: fmt.Sprintf("g%d@x.com", i+1),
		}
	}
	return out
}

// fastOpts keeps retry and batch delays out of the test clock.
func fastOpts() Options {
	return Options{
		BatchSize:       2,
		InterBatchDelay: time.Millisecond,
		SendTimeout:     time.Second,
		MaxAttempts:     2,
		RetryDelay:      time.Millisecond,
	}
}

func (s *BatcherSuite) TestNew() {
	s.Run("nil issuer returns error", func() {
		_, err := New(nil, s.transport)
		s.Error(err)
	})

	s.Run("nil event id rejected before any item", func() {
		_, err := s.batcher.SendBulk(s.ctx, guests(1), models.Event{}, fastOpts(), nil)
		s.Error(err)
	})
}

func (s *BatcherSuite) TestSendBulk() {
	s.Run("all items sent", func() {
		report, err := s.batcher.SendBulk(s.ctx, guests(5), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(5, report.Total)
		s.Equal(5, report.Sent)
		s.Zero(report.Simulated)
		s.Zero(report.Failed)
		s.Empty(report.Failures)
	})

	s.Run("counts always sum to total under injected failures", func() {
		transport := newFakeTransport()
		transport.script("g2@x.com", NewError(KindRejected, errors.New("bad number")))
		transport.script("g4@x.com", NewError(KindTimeout, errors.New("slow")),
			NewError(KindTimeout, errors.New("slow")))
		batcher := s.newBatcher(transport)

		report, err := batcher.SendBulk(s.ctx, guests(7), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(7, report.Total)
		s.Equal(report.Total, report.Sent+report.Simulated+report.Failed)
		s.Equal(2, report.Failed)
		s.Len(report.Failures, 2)
	})

	s.Run("empty guest list yields an empty report", func() {
		report, err := s.batcher.SendBulk(s.ctx, nil, s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Zero(report.Total)
		s.Zero(report.Sent)
	})
}

func (s *BatcherSuite) TestRetryPolicy() {
	s.Run("transient failure is retried and can succeed", func() {
		s.transport.script("g1@x.com", NewError(KindTimeout, errors.New("slow")))

		report, err := s.batcher.SendBulk(s.ctx, guests(1), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(1, report.Sent)
		s.Equal(2, s.transport.calls)
	})

	s.Run("terminal failure is not retried", func() {
		transport := newFakeTransport()
		transport.script("g1@x.com", NewError(KindRejected, errors.New("blocked recipient")))
		batcher := s.newBatcher(transport)

		report, err := batcher.SendBulk(s.ctx, guests(1), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(1, report.Failed)
		s.Require().Len(report.Failures, 1)
		s.Equal(1, report.Failures[0].Attempts)
		s.Equal(1, transport.calls)
	})

	s.Run("exhausted retries report max attempts without aborting the batch", func() {
		transport := newFakeTransport()
		transport.script("g2@x.com",
			NewError(KindUnreachable, errors.New("down")),
			NewError(KindUnreachable, errors.New("down")))
		batcher := s.newBatcher(transport)

		report, err := batcher.SendBulk(s.ctx, guests(3), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(2, report.Sent)
		s.Equal(1, report.Failed)
		s.Require().Len(report.Failures, 1)
		s.Equal("g2", report.Failures[0].GuestID)
		s.Equal(2, report.Failures[0].Attempts)
	})

	s.Run("untagged errors are terminal", func() {
		s.False(Transient(errors.New("something opaque")))
		s.True(Transient(NewError(KindTimeout, errors.New("t"))))
		s.True(Transient(NewError(KindUnreachable, errors.New("u"))))
		s.False(Transient(NewError(KindRejected, errors.New("r"))))
	})
}

func (s *BatcherSuite) TestSimulatedMode() {
	s.Run("unconfigured transport settles every item as simulated", func() {
		s.transport.notConfigured = true

		report, err := s.batcher.SendBulk(s.ctx, guests(4), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(4, report.Simulated)
		s.Zero(report.Sent)
		s.Zero(report.Failed)
		s.Zero(s.transport.calls)
	})

	s.Run("nil transport behaves the same", func() {
		batcher := s.newBatcher(nil)
		report, err := batcher.SendBulk(s.ctx, guests(2), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(2, report.Simulated)
	})
}

func (s *BatcherSuite) TestBatching() {
	s.Run("concurrency never exceeds the batch size", func() {
		s.transport.holdPerSend = 20 * time.Millisecond

		report, err := s.batcher.SendBulk(s.ctx, guests(6), s.event, fastOpts(), nil)
		s.Require().NoError(err)
		s.Equal(6, report.Sent)
		s.LessOrEqual(s.transport.maxInFlight, 2)
	})

	s.Run("batches run sequentially with the inter-batch delay", func() {
		opts := fastOpts()
		opts.InterBatchDelay = 40 * time.Millisecond

		// 5 guests at batch size 2 means 3 phases and 2 delays.
		start := time.Now()
		report, err := s.batcher.SendBulk(s.ctx, guests(5), s.event, opts, nil)
		s.Require().NoError(err)
		s.Equal(5, report.Sent)
		s.GreaterOrEqual(time.Since(start), 2*opts.InterBatchDelay)
	})
}

func (s *BatcherSuite) TestProgress() {
	s.Run("current is monotonic and ends at total", func() {
		var mu sync.Mutex
		var updates []Progress
		onProgress := func(p Progress) {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, p)
		}

		_, err := s.batcher.SendBulk(s.ctx, guests(5), s.event, fastOpts(), onProgress)
		s.Require().NoError(err)

		s.Require().Len(updates, 5)
		for i, update := range updates {
			s.Equal(i+1, update.Current)
			s.Equal(5, update.Total)
			s.Equal("sent", update.Status)
		}
		s.Equal(100, updates[4].Percentage)
	})

	s.Run("failed items report their status", func() {
		transport := newFakeTransport()
		transport.script("g1@x.com", NewError(KindRejected, errors.New("no")))
		batcher := s.newBatcher(transport)

		var last Progress
		_, err := batcher.SendBulk(s.ctx, guests(1), s.event, fastOpts(), func(p Progress) { last = p })
		s.Require().NoError(err)
		s.Equal("failed", last.Status)
		s.Equal("Guest 1", last.CurrentGuest)
	})
}

func (s *BatcherSuite) TestIssuanceFailureIsolated() {
	c, err := codec.New("dispatch-test-secret")
	s.Require().NoError(err)

	issuer, err := issue.New(c, &savesFailFor{failGuest: "g2", inner: s.newStore()}, "https://x")
	s.Require().NoError(err)
	batcher, err := New(issuer, s.transport)
	s.Require().NoError(err)

	report, err := batcher.SendBulk(s.ctx, guests(3), s.event, fastOpts(), nil)
	s.Require().NoError(err)
	s.Equal(2, report.Sent)
	s.Equal(1, report.Failed)
	s.Require().Len(report.Failures, 1)
	s.Equal("g2", report.Failures[0].GuestID)
}

func (s *BatcherSuite) newStore() *store.TieredStore {
	tiered, err := store.New(
		store.NewInMemoryBackend(models.TierRemote),
		store.NewInMemoryBackend(models.TierLocal),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	return tiered
}

// savesFailFor fails persistence for one guest and delegates the rest.
type savesFailFor struct {
	failGuest string
	inner     *store.TieredStore
}

func (f *savesFailFor) Save(ctx context.Context, code string, guest models.Guest, event models.Event, credential string) (*models.TicketRecord, error) {
	if guest.ID == f.failGuest {
		return nil, errors.New("both tiers down")
	}
	return f.inner.Save(ctx, code, guest, event, credential)
}
