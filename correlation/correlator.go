package correlation

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"leadcaller/judge"
	"leadcaller/metrics"
	"leadcaller/models"
	"leadcaller/storage"
	"leadcaller/utils"
)

// ErrMalformedEvent is returned for payloads that cannot be correlated.
var ErrMalformedEvent = eris.New("correlation: malformed webhook event")

// Event types reported by the voice platform.
const (
	EventSpeechUpdate       = "speech-update"
	EventConversationUpdate = "conversation-update"
	EventEndOfCallReport    = "end-of-call-report"
	EventHang               = "hang"
	EventStatusUpdate       = "status-update"

	callStatusEnded = "ended"
)

// Outcome describes what a webhook event did.
type Outcome string

const (
	OutcomeCounted          Outcome = "counted"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomeStale            Outcome = "stale"
	OutcomeNoExchange       Outcome = "no_exchange"
	OutcomeNoMatch          Outcome = "no_match"
	OutcomeJudgeFailed      Outcome = "judge_failed"
	OutcomeWritten          Outcome = "written"
)

// Evaluator judges one exchange against a criterion.
type Evaluator interface {
	Evaluate(ctx context.Context, question, answer, criterion string) (judge.Verdict, error)
}

// Cycles exposes the search cycle whose dataset is current.
type Cycles interface {
	Current() (*models.Cycle, bool)
}

// Datasets is the single-writer dataset store.
type Datasets interface {
	Current() (*models.Dataset, error)
	Update(ctx context.Context, fn func(ds *models.Dataset) (bool, error)) (*models.Dataset, error)
}

// Qualifier recomputes the qualified-lead snapshot from a dataset.
type Qualifier interface {
	Refresh(ctx context.Context, ds *models.Dataset) (*models.QualifiedSnapshot, error)
}

// Result reports the effect of one event. JudgeErr is set when the
// judgment call failed; the exchange is still written back in that case.
type Result struct {
	Outcome  Outcome
	Session  *models.CallSession
	Lead     *models.Lead
	Verdict  *judge.Verdict
	Snapshot *models.QualifiedSnapshot
	JudgeErr error
}

// Correlator folds webhook events into call sessions and, on the final
// event, writes the exchange and verdict back to the matching lead.
type Correlator struct {
	sessions  SessionStore
	cycles    Cycles
	datasets  Datasets
	judge     Evaluator
	qualifier Qualifier
	logger    *utils.Logger
}

func NewCorrelator(sessions SessionStore, cycles Cycles, datasets Datasets, judge Evaluator, qualifier Qualifier, logger *utils.Logger) *Correlator {
	return &Correlator{
		sessions:  sessions,
		cycles:    cycles,
		datasets:  datasets,
		judge:     judge,
		qualifier: qualifier,
		logger:    logger,
	}
}

// IsUpdate reports whether the event type advances the update counter.
func IsUpdate(m *models.WebhookMessage) bool {
	return m.Type == EventSpeechUpdate || m.Type == EventConversationUpdate
}

// IsFinal reports whether the event closes the call.
func IsFinal(m *models.WebhookMessage) bool {
	switch m.Type {
	case EventEndOfCallReport, EventHang:
		return true
	case EventStatusUpdate:
		return strings.EqualFold(m.Call.Status, callStatusEnded)
	}
	return false
}

// Handle processes one webhook event.
func (c *Correlator) Handle(ctx context.Context, ev *models.WebhookEvent) (*Result, error) {
	if ev == nil || ev.Message == nil || ev.Message.Type == "" {
		return nil, ErrMalformedEvent
	}
	msg := ev.Message
	callID := msg.Call.ID
	if callID == "" {
		callID = msg.Call.Customer.Number
	}
	if callID == "" {
		return nil, ErrMalformedEvent
	}

	log := c.logger.Z().With(zap.String("call_id", callID), zap.String("type", msg.Type))
	final := IsFinal(msg)
	alreadyFinal := false

	session, err := c.sessions.Upsert(ctx, callID, func(s *models.CallSession) error {
		closed := s.Finalized || s.Finalizing
		alreadyFinal = closed
		if s.CustomerNumber == "" {
			s.CustomerNumber = msg.Call.Customer.Number
		}
		if IsUpdate(msg) {
			s.UpdateCount++
		}
		if msg.Artifact.Transcript != "" && !closed {
			ex := Exchange{Question: s.Question, Answer: s.Answer}
			ex.Apply(msg.Artifact.Transcript)
			s.Question, s.Answer = ex.Question, ex.Answer
		}
		if final && !closed {
			s.Finalizing = true
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "correlation: update session")
	}

	res := &Result{Session: session}
	switch {
	case !final && IsUpdate(msg):
		res.Outcome = OutcomeCounted
	case !final:
		res.Outcome = OutcomeIgnored
	case alreadyFinal:
		res.Outcome = OutcomeAlreadyFinalized
	default:
		if err := c.finalize(ctx, res, log); err != nil {
			if relErr := c.release(ctx, callID); relErr != nil {
				log.Error("releasing finalization claim failed", zap.Error(relErr))
			}
			return nil, err
		}
	}

	metrics.WebhookEvents.WithLabelValues(msg.Type, string(res.Outcome)).Inc()
	log.Debug("webhook event handled", zap.String("outcome", string(res.Outcome)), zap.Int("updates", session.UpdateCount))
	return res, nil
}

func (c *Correlator) finalize(ctx context.Context, res *Result, log *zap.Logger) error {
	s := res.Session

	cycle, ok := c.cycles.Current()
	if s.CycleID != "" && (!ok || cycle.ID != s.CycleID) {
		log.Info("event for a superseded search cycle ignored", zap.String("session_cycle", s.CycleID))
		res.Outcome = OutcomeStale
		return c.markFinal(ctx, res)
	}

	ex := Exchange{Question: s.Question, Answer: s.Answer}
	if !ex.Complete() {
		log.Info("call ended without a question and answer")
		res.Outcome = OutcomeNoExchange
		return c.markFinal(ctx, res)
	}

	ds, err := c.datasets.Current()
	if err != nil && !errors.Is(err, storage.ErrNoDataset) {
		return eris.Wrap(err, "correlation: load dataset")
	}
	lead, _ := ds.FindByPhone(s.CustomerNumber)
	if lead == nil {
		log.Info("no lead matches the called number", zap.String("customer", s.CustomerNumber))
		res.Outcome = OutcomeNoMatch
		return c.markFinal(ctx, res)
	}

	criterion := ""
	if ok {
		criterion = cycle.Criterion
	}
	verdict, judgeErr := c.judge.Evaluate(ctx, ex.Question, ex.Answer, criterion)
	if judgeErr != nil {
		log.Error("criteria judgment failed", zap.Error(judgeErr))
		res.JudgeErr = judgeErr
	} else {
		res.Verdict = &verdict
	}

	updated, err := c.datasets.Update(ctx, func(ds *models.Dataset) (bool, error) {
		row, _ := ds.FindByPhone(s.CustomerNumber)
		if row == nil {
			return false, nil
		}
		row.Question = ex.Question
		row.Answer = ex.Answer
		row.MeetsCriteria = judgeErr == nil && verdict.Meets
		res.Lead = row
		return true, nil
	})
	if err != nil {
		return eris.Wrap(err, "correlation: write back")
	}
	if res.Lead == nil {
		res.Outcome = OutcomeNoMatch
		return c.markFinal(ctx, res)
	}

	snap, err := c.qualifier.Refresh(ctx, updated)
	if err != nil {
		return eris.Wrap(err, "correlation: refresh qualified leads")
	}
	res.Snapshot = snap

	if judgeErr != nil {
		// left open so a redelivered report can retry the judgment
		res.Outcome = OutcomeJudgeFailed
		if err := c.release(ctx, s.CallID); err != nil {
			return err
		}
		res.Session.Finalizing = false
		return nil
	}
	res.Outcome = OutcomeWritten
	log.Info("lead updated from call",
		zap.String("lead", res.Lead.Name),
		zap.Bool("meets_criteria", res.Lead.MeetsCriteria))
	return c.markFinal(ctx, res)
}

func (c *Correlator) markFinal(ctx context.Context, res *Result) error {
	s, err := c.sessions.Upsert(ctx, res.Session.CallID, func(s *models.CallSession) error {
		s.Finalized = true
		s.Finalizing = false
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "correlation: finalize session")
	}
	res.Session = s
	return nil
}

// release drops the finalization claim so a redelivered event can retry.
func (c *Correlator) release(ctx context.Context, callID string) error {
	_, err := c.sessions.Upsert(ctx, callID, func(s *models.CallSession) error {
		s.Finalizing = false
		return nil
	})
	return eris.Wrap(err, "correlation: release session")
}

// IsMalformed reports whether err came from an uncorrelatable payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}
