package correlation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leadcaller/judge"
	"leadcaller/models"
	"leadcaller/storage"
	"leadcaller/utils"
)

const demoPhone = "+15550199"

type fakeCycles struct {
	cycle *models.Cycle
}

func (f *fakeCycles) Current() (*models.Cycle, bool) {
	if f.cycle == nil {
		return nil, false
	}
	return f.cycle, true
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, q, a, criterion string) (judge.Verdict, error) {
	args := m.Called(ctx, q, a, criterion)
	return args.Get(0).(judge.Verdict), args.Error(1)
}

type recordingQualifier struct {
	mu        sync.Mutex
	refreshes int
}

func (r *recordingQualifier) Refresh(_ context.Context, ds *models.Dataset) (*models.QualifiedSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	snap := &models.QualifiedSnapshot{CycleID: ds.CycleID}
	for _, l := range ds.Leads {
		if l.MeetsCriteria {
			snap.Leads = append(snap.Leads, l.Values())
		}
	}
	return snap, nil
}

type harness struct {
	correlator *Correlator
	sessions   *MemoryStore
	datasets   *storage.DatasetStore
	evaluator  *mockEvaluator
	qualifier  *recordingQualifier
	cycles     *fakeCycles
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := utils.NewNopLogger()
	datasets, err := storage.NewDatasetStore(filepath.Join(t.TempDir(), "result.csv"), logger)
	require.NoError(t, err)
	require.NoError(t, datasets.Replace(context.Background(), &models.Dataset{
		CycleID: "cycle-1",
		Leads: []*models.Lead{
			models.NewDemoLead(demoPhone),
			{Name: "Roaster A", Phone: "+1 555-0100", Address: "1 Main"},
		},
	}))

	h := &harness{
		sessions:  NewMemoryStore(),
		datasets:  datasets,
		evaluator: &mockEvaluator{},
		qualifier: &recordingQualifier{},
		cycles:    &fakeCycles{cycle: &models.Cycle{ID: "cycle-1", Criterion: "customer wants the discount"}},
	}
	h.correlator = NewCorrelator(h.sessions, h.cycles, h.datasets, h.evaluator, h.qualifier, logger)
	return h
}

func (h *harness) register(t *testing.T, callID, cycleID, number string) {
	t.Helper()
	_, err := h.sessions.Upsert(context.Background(), callID, func(s *models.CallSession) error {
		s.CycleID = cycleID
		s.CustomerNumber = number
		return nil
	})
	require.NoError(t, err)
}

func event(typ, callID, number, transcript string) *models.WebhookEvent {
	return &models.WebhookEvent{Message: &models.WebhookMessage{
		Type:     typ,
		Call:     models.WebhookCall{ID: callID, Customer: models.WebhookCustomer{Number: number}},
		Artifact: models.WebhookArtifact{Transcript: transcript},
	}}
}

func TestHandle_EndToEndWriteBack(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, "Do you want 10% off?", "yes", "customer wants the discount").
		Return(judge.Verdict{Meets: true, Reply: "Yes"}, nil).Once()

	ctx := context.Background()
	res, err := h.correlator.Handle(ctx, event(EventConversationUpdate, "call-1", demoPhone, "AI: Do you want 10% off?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCounted, res.Outcome)

	res, err = h.correlator.Handle(ctx, event(EventEndOfCallReport, "call-1", demoPhone, "AI: Do you want 10% off?\nUser: yes"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, res.Outcome)
	require.NotNil(t, res.Lead)
	assert.Equal(t, models.DemoLeadName, res.Lead.Name)
	require.NotNil(t, res.Snapshot)
	require.Len(t, res.Snapshot.Leads, 1)
	assert.Equal(t, models.DemoLeadName, res.Snapshot.Leads[0][models.ColName])
	assert.True(t, res.Session.Finalized)
	assert.Equal(t, 1, res.Session.UpdateCount)

	ds, err := h.datasets.Current()
	require.NoError(t, err)
	assert.Equal(t, "Do you want 10% off?", ds.Leads[0].Question)
	assert.Equal(t, "yes", ds.Leads[0].Answer)
	assert.True(t, ds.Leads[0].MeetsCriteria)
	assert.Empty(t, ds.Leads[1].Answer)
	h.evaluator.AssertExpectations(t)
}

func TestHandle_NegativeVerdictLeavesCacheEmpty(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, "no", mock.Anything).
		Return(judge.Verdict{Meets: false, Reply: "No"}, nil)

	res, err := h.correlator.Handle(context.Background(), event(EventHang, "call-1", demoPhone, "AI: Want a demo?\nUser: no"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, res.Outcome)
	assert.Empty(t, res.Snapshot.Leads)
	assert.False(t, res.Lead.MeetsCriteria)
	assert.Equal(t, "no", res.Lead.Answer)
}

func TestHandle_UpdateEventsOnlyCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, typ := range []string{EventSpeechUpdate, EventConversationUpdate, EventSpeechUpdate} {
		res, err := h.correlator.Handle(ctx, event(typ, "call-1", demoPhone, ""))
		require.NoError(t, err)
		assert.Equal(t, OutcomeCounted, res.Outcome)
	}
	res, err := h.correlator.Handle(ctx, event("transcript", "call-1", demoPhone, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	s, err := h.sessions.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.UpdateCount)
	assert.False(t, s.Finalized)
	h.evaluator.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, h.qualifier.refreshes)
}

func TestHandle_StatusUpdateFinalizesOnlyWhenEnded(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{Meets: true}, nil)
	ctx := context.Background()

	ev := event(EventStatusUpdate, "call-1", demoPhone, "AI: Q?\nUser: yes")
	ev.Message.Call.Status = "in-progress"
	res, err := h.correlator.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	ev.Message.Call.Status = "ended"
	res, err = h.correlator.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, res.Outcome)
}

func TestHandle_DuplicateFinalEventIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{Meets: true}, nil).Once()
	ctx := context.Background()

	ev := event(EventEndOfCallReport, "call-1", demoPhone, "AI: Q?\nUser: yes")
	_, err := h.correlator.Handle(ctx, ev)
	require.NoError(t, err)

	ev.Message.Artifact.Transcript = "AI: Q?\nUser: actually no"
	res, err := h.correlator.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, res.Outcome)
	assert.Equal(t, "yes", res.Session.Answer)
	assert.Equal(t, 1, h.qualifier.refreshes)
	h.evaluator.AssertExpectations(t)
}

func TestHandle_ConcurrentDuplicateFinalEventsJudgeOnce(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{Meets: true}, nil)
	ctx := context.Background()

	const deliveries = 5
	outcomes := make([]Outcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.correlator.Handle(ctx, event(EventEndOfCallReport, "call-1", demoPhone, "AI: Do you want 10% off?\nUser: yes"))
			if assert.NoError(t, err) {
				outcomes[i] = res.Outcome
			}
		}(i)
	}
	wg.Wait()

	written, duplicates := 0, 0
	for _, o := range outcomes {
		switch o {
		case OutcomeWritten:
			written++
		case OutcomeAlreadyFinalized:
			duplicates++
		}
	}
	assert.Equal(t, 1, written)
	assert.Equal(t, deliveries-1, duplicates)
	h.evaluator.AssertNumberOfCalls(t, "Evaluate", 1)
	assert.Equal(t, 1, h.qualifier.refreshes)

	s, err := h.sessions.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, s.Finalized)
	assert.False(t, s.Finalizing)
}

func TestHandle_NoMatchingLead(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", "+1 (555) 0199")

	res, err := h.correlator.Handle(context.Background(), event(EventEndOfCallReport, "call-1", "+1 (555) 0199", "AI: Q?\nUser: yes"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.True(t, res.Session.Finalized)

	ds, err := h.datasets.Current()
	require.NoError(t, err)
	assert.Empty(t, ds.Leads[0].Question)
	h.evaluator.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_NoExchange(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)

	res, err := h.correlator.Handle(context.Background(), event(EventEndOfCallReport, "call-1", demoPhone, "AI: Hello, anyone there?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoExchange, res.Outcome)

	ds, err := h.datasets.Current()
	require.NoError(t, err)
	assert.Empty(t, ds.Leads[0].Question)
}

func TestHandle_StaleCycle(t *testing.T) {
	h := newHarness(t)
	h.register(t, "old-call", "cycle-0", demoPhone)

	res, err := h.correlator.Handle(context.Background(), event(EventEndOfCallReport, "old-call", demoPhone, "AI: Q?\nUser: yes"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)

	ds, err := h.datasets.Current()
	require.NoError(t, err)
	assert.Empty(t, ds.Leads[0].Answer)
	h.evaluator.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_UnregisteredCallUsesCurrentCycle(t *testing.T) {
	h := newHarness(t)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, "customer wants the discount").
		Return(judge.Verdict{Meets: true}, nil)

	res, err := h.correlator.Handle(context.Background(), event(EventEndOfCallReport, "", "+1 555-0100", "AI: Q?\nUser: yes"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, res.Outcome)
	assert.Equal(t, "Roaster A", res.Lead.Name)
	assert.Equal(t, "+1 555-0100", res.Session.CallID)
}

func TestHandle_JudgeFailureWritesExchangeAndStaysOpen(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{}, assert.AnError)

	res, err := h.correlator.Handle(context.Background(), event(EventEndOfCallReport, "call-1", demoPhone, "AI: Q?\nUser: yes"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeJudgeFailed, res.Outcome)
	assert.ErrorIs(t, res.JudgeErr, assert.AnError)
	assert.False(t, res.Session.Finalized)

	ds, err := h.datasets.Current()
	require.NoError(t, err)
	assert.Equal(t, "yes", ds.Leads[0].Answer)
	assert.False(t, ds.Leads[0].MeetsCriteria)
}

func TestHandle_RedeliveryAfterJudgeFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-1", "cycle-1", demoPhone)
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{}, assert.AnError).Once()
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{Meets: true}, nil).Once()
	ctx := context.Background()
	ev := event(EventEndOfCallReport, "call-1", demoPhone, "AI: Q?\nUser: yes")

	res, err := h.correlator.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeJudgeFailed, res.Outcome)
	assert.False(t, res.Session.Finalizing)

	res, err = h.correlator.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, res.Outcome)
	assert.True(t, res.Session.Finalized)
	h.evaluator.AssertExpectations(t)
}

func TestHandle_Malformed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, ev := range []*models.WebhookEvent{
		nil,
		{},
		{Message: &models.WebhookMessage{}},
		event(EventEndOfCallReport, "", "", "AI: Q?"),
	} {
		_, err := h.correlator.Handle(ctx, ev)
		assert.True(t, IsMalformed(err))
	}
}

func TestHandle_ConcurrentCallsAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.register(t, "call-a", "cycle-1", demoPhone)
	h.register(t, "call-b", "cycle-1", "+1 555-0100")
	h.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(judge.Verdict{Meets: true}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, tc := range []struct{ id, number, answer string }{
		{"call-a", demoPhone, "yes please"},
		{"call-b", "+1 555-0100", "sure"},
	} {
		wg.Add(1)
		go func(id, number, answer string) {
			defer wg.Done()
			_, err := h.correlator.Handle(ctx, event(EventConversationUpdate, id, number, "AI: Q?"))
			assert.NoError(t, err)
			_, err = h.correlator.Handle(ctx, event(EventEndOfCallReport, id, number, "AI: Q?\nUser: "+answer))
			assert.NoError(t, err)
		}(tc.id, tc.number, tc.answer)
	}
	wg.Wait()

	ds, err := h.datasets.Current()
	require.NoError(t, err)
	assert.Equal(t, "yes please", ds.Leads[0].Answer)
	assert.Equal(t, "sure", ds.Leads[1].Answer)
}
