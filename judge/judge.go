package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"leadcaller/llm"
	"leadcaller/metrics"
	"leadcaller/utils"
)

// ErrMissingCriterion is returned before any model call when no criterion is set.
var ErrMissingCriterion = eris.New("judge: criterion is required")

const systemPrompt = "You evaluate sales call answers. Reply with Yes or No, followed by at most one short sentence."

// Verdict is the reduced judgment plus the raw reply it came from.
type Verdict struct {
	Meets bool
	Reply string
}

// Judge asks a language model whether an answer satisfies a criterion.
type Judge struct {
	client    llm.Client
	model     string
	maxTokens int64
	policy    Policy
	logger    *utils.Logger
}

// Option configures a Judge.
type Option func(*Judge)

// WithPolicy replaces the default keyword reduction.
func WithPolicy(p Policy) Option {
	return func(j *Judge) { j.policy = p }
}

func New(client llm.Client, model string, maxTokens int64, logger *utils.Logger, opts ...Option) *Judge {
	if maxTokens <= 0 {
		maxTokens = 64
	}
	j := &Judge{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		policy:    NewKeywordPolicy(),
		logger:    logger,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Evaluate judges one question/answer exchange against criterion.
func (j *Judge) Evaluate(ctx context.Context, question, answer, criterion string) (Verdict, error) {
	if strings.TrimSpace(criterion) == "" {
		return Verdict{}, ErrMissingCriterion
	}

	temp := 0.0
	resp, err := j.client.CreateMessage(ctx, llm.MessageRequest{
		Model:       j.model,
		MaxTokens:   j.maxTokens,
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: Prompt(question, answer, criterion)}},
		Temperature: &temp,
	})
	if err != nil {
		metrics.Judgments.WithLabelValues("error").Inc()
		return Verdict{}, eris.Wrap(err, "judge: evaluate")
	}

	reply := resp.Text()
	v := Verdict{Meets: j.policy.Reduce(reply), Reply: reply}
	metrics.Judgments.WithLabelValues(fmt.Sprintf("%t", v.Meets)).Inc()
	j.logger.Z().Debug("criteria judged",
		zap.String("reply", reply),
		zap.Bool("meets", v.Meets),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
	)
	return v, nil
}

// Prompt renders the judgment request for one exchange.
func Prompt(question, answer, criterion string) string {
	return fmt.Sprintf(
		"Question asked to the prospect: %s\nProspect's answer: %s\nCriterion: %s\n\nDoes the answer satisfy the criterion? Answer Yes or No.",
		question, answer, criterion,
	)
}
