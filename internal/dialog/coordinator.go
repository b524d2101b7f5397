// Package dialog implements the stateful turn protocol: pending
// disambiguation sessions, reply interpretation, and final answer
// production.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/evaluator"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/selector"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/usage"
)

// lockStripes serializes turns per conversation key. Two concurrent turns
// on the same key would race on the pending session.
const lockStripes = 64

// TurnResult is what a single conversational turn produces: either a
// final answer or a prompt that keeps the conversation open.
type TurnResult struct {
	Outcome domain.SelectOutcome `json:"outcome"`

	// Answer is set when the turn resolved to a single rule.
	Answer *domain.Answer `json:"answer,omitempty"`

	// Prompt and Options are set when the turn opened or re-sent a
	// disambiguation question.
	Prompt  string          `json:"prompt,omitempty"`
	Options []domain.Option `json:"options,omitempty"`

	// Text carries the user-facing message for terminal non-answer
	// outcomes (not found, currency mismatch, unresolved note).
	Text string `json:"text,omitempty"`

	// NoteReference is set when the answer lives in an unresolved
	// schedule footnote.
	NoteReference string `json:"noteReference,omitempty"`
}

// Coordinator drives the turn protocol over the selector, the evaluator,
// and the session store.
type Coordinator struct {
	selector *selector.Selector
	eval     *evaluator.Evaluator
	sessions domain.SessionStore
	usage    *usage.Service
	bus      domain.EventBus
	ttl      time.Duration

	locks [lockStripes]sync.Mutex
}

// New creates a coordinator. bus may be nil; resolution events are then
// not published.
func New(sel *selector.Selector, eval *evaluator.Evaluator, sessions domain.SessionStore, usageSvc *usage.Service, bus domain.EventBus) *Coordinator {
	return &Coordinator{
		selector: sel,
		eval:     eval,
		sessions: sessions,
		usage:    usageSvc,
		bus:      bus,
		ttl:      domain.SessionTTL,
	}
}

// HandleTurn processes one conversational turn. A pending session routes
// the raw text through reply interpretation; otherwise the classifier
// output q starts a fresh resolution. Turns on the same key serialize.
func (c *Coordinator) HandleTurn(ctx context.Context, key string, rawText string, q *domain.ResolvedQuery) (*TurnResult, error) {
	if key == "" {
		return nil, fmt.Errorf("conversation key is required")
	}

	lock := &c.locks[xxhash.Sum64String(key)%lockStripes]
	lock.Lock()
	defer lock.Unlock()

	sess, err := c.sessions.GetSession(ctx, key)
	if err != nil {
		// The failover store absorbs outages; an error here means both
		// stores failed. Treat the turn as fresh rather than dropping it.
		slog.Error("session lookup failed, treating turn as fresh", "error", err)
		sess = nil
	}

	if sess != nil {
		return c.handleReply(ctx, key, rawText, sess)
	}

	if q == nil || q.ChargeID == "" {
		return nil, fmt.Errorf("no pending session and no resolved query for this turn")
	}

	attrs := make(map[string]string, len(q.Attributes))
	for k, v := range q.Attributes {
		attrs[k] = v
	}
	if q.ProductLine != "" {
		attrs["product_line"] = q.ProductLine
	}

	return c.resolve(ctx, key, q.ChargeID, attrs, q.Currency, q.Inputs(), q.CustomerID)
}

// handleReply interprets the user's reply against the pending options.
// An uninterpretable reply re-sends the stored prompt verbatim and leaves
// the session untouched; the TTL keeps running from session creation.
func (c *Coordinator) handleReply(ctx context.Context, key, rawText string, sess *domain.DisambiguationSession) (*TurnResult, error) {
	opt := resolveReply(rawText, sess.Options)
	if opt == nil {
		return &TurnResult{
			Outcome: domain.SelectCandidates,
			Prompt:  sess.PromptText,
			Options: sess.Options,
		}, nil
	}

	// The reply is terminal for this session whatever happens next. A
	// nested ambiguity opens a fresh session with its own TTL.
	if err := c.sessions.DeleteSession(ctx, key); err != nil {
		slog.Warn("failed to delete resolved session", "error", err)
	}

	attrs := make(map[string]string, len(sess.BaseAttrs)+1)
	for k, v := range sess.BaseAttrs {
		attrs[k] = v
	}
	attrs[sess.Dimension] = opt.Value

	return c.resolve(ctx, key, sess.ChargeID, attrs, sess.Currency, sess.Inputs, sess.CustomerID)
}

// resolve runs selection and dispatches on the outcome.
func (c *Coordinator) resolve(ctx context.Context, key, chargeID string, attrs map[string]string, currency string, inputs *domain.RuntimeInputs, customerID string) (*TurnResult, error) {
	if inputs == nil {
		inputs = &domain.RuntimeInputs{}
	}

	result := c.selector.Select(ctx, &domain.SelectQuery{
		ChargeID: chargeID,
		AsOf:     time.Now(),
		Attrs:    attrs,
		Currency: currency,
		Inputs:   inputs,
	})

	switch result.Outcome {
	case domain.SelectSingle:
		return c.answer(ctx, key, result.Rule, inputs, customerID)

	case domain.SelectCandidates:
		return c.openSession(ctx, key, chargeID, attrs, currency, inputs, customerID, result)

	case domain.SelectNotFound:
		res := &TurnResult{
			Outcome: domain.SelectNotFound,
			Text:    "This charge is not covered by the schedule of charges.",
		}
		c.publishResolution(ctx, key, chargeID, "", res)
		return res, nil

	case domain.SelectCurrencyMismatch:
		res := &TurnResult{
			Outcome: domain.SelectCurrencyMismatch,
			Text: fmt.Sprintf("This charge is only published in %s; no %s figure exists in the schedule.",
				result.HaveCurrency, currency),
		}
		c.publishResolution(ctx, key, chargeID, "", res)
		return res, nil

	case domain.SelectAmbiguous:
		res := &TurnResult{
			Outcome: domain.SelectAmbiguous,
			Text:    "The schedule holds conflicting entries for this charge. Please contact support while we correct the data.",
		}
		c.publishResolution(ctx, key, chargeID, "", res)
		return res, nil

	default:
		return nil, fmt.Errorf("unknown selection outcome: %s", result.Outcome)
	}
}

// answer evaluates the winning rule, deriving a missing usage ordinal
// first when the rule needs one and the customer is known.
func (c *Coordinator) answer(ctx context.Context, key string, rule *domain.PricingRule, inputs *domain.RuntimeInputs, customerID string) (*TurnResult, error) {
	if rule.Condition == domain.ConditionFreeUptoN && inputs.UsageIndex == 0 && customerID != "" && c.usage != nil {
		idx, err := c.usage.NextIndex(ctx, customerID, rule.ChargeID, rule.Basis)
		if err != nil {
			slog.Warn("usage derivation failed, answering without ordinal", "error", err)
		} else {
			inputs.UsageIndex = idx
		}
	}

	ans, err := c.eval.Evaluate(ctx, rule, inputs)
	if err != nil {
		var noteErr *evaluator.ExternalNoteError
		if errors.As(err, &noteErr) {
			res := &TurnResult{
				Outcome:       domain.SelectSingle,
				Text:          fmt.Sprintf("Please refer to schedule note %s for this charge.", noteErr.Reference),
				NoteReference: noteErr.Reference,
			}
			c.publishResolution(ctx, key, rule.ChargeID, rule.ID, res)
			return res, nil
		}
		return nil, err
	}

	res := &TurnResult{
		Outcome: domain.SelectSingle,
		Answer:  ans,
		Text:    ans.Text,
	}
	c.publishResolution(ctx, key, rule.ChargeID, rule.ID, res)
	return res, nil
}

// openSession stores a disambiguation session and returns its prompt. The
// runtime inputs travel with the session; the resolving reply must answer
// with the amounts the original turn supplied.
func (c *Coordinator) openSession(ctx context.Context, key, chargeID string, attrs map[string]string, currency string, inputs *domain.RuntimeInputs, customerID string, result *domain.SelectResult) (*TurnResult, error) {
	sess := &domain.DisambiguationSession{
		ChargeID:   chargeID,
		Dimension:  result.Dimension,
		BaseAttrs:  attrs,
		Options:    result.Candidates,
		PromptText: buildPrompt(result.Dimension, result.Candidates),
		Currency:   currency,
		Inputs:     inputs,
		CustomerID: customerID,
		CreatedAt:  time.Now(),
	}

	if err := c.sessions.PutSession(ctx, key, sess, c.ttl); err != nil {
		// Without a stored session the reply cannot be interpreted; still
		// ask, the user can restate with the missing detail.
		slog.Error("failed to store disambiguation session", "error", err)
	}

	if c.bus != nil {
		payload, _ := json.Marshal(sess)
		if err := c.bus.Publish(ctx, domain.TopicDisambiguationOpened, payload); err != nil {
			slog.Warn("failed to publish disambiguation event", "error", err)
		}
	}

	return &TurnResult{
		Outcome: domain.SelectCandidates,
		Prompt:  sess.PromptText,
		Options: sess.Options,
	}, nil
}

// publishResolution emits the audit event for a terminal turn.
func (c *Coordinator) publishResolution(ctx context.Context, key, chargeID, ruleID string, res *TurnResult) {
	if c.bus == nil {
		return
	}

	event := domain.ResolutionEvent{
		ID:              uuid.New().String(),
		ConversationKey: key,
		ChargeID:        chargeID,
		RuleID:          ruleID,
		Outcome:         string(res.Outcome),
		AnswerText:      res.Text,
		Timestamp:       time.Now(),
	}
	if res.Answer != nil {
		event.AnswerText = res.Answer.Text
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal resolution event", "error", err)
		return
	}
	if err := c.bus.Publish(ctx, domain.TopicTurnResolved, payload); err != nil {
		slog.Warn("failed to publish resolution event", "error", err)
	}
}

// buildPrompt renders a numbered disambiguation question. The numbering
// is part of the session contract: replies may reference it.
func buildPrompt(dimension string, options []domain.Option) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Which %s do you mean?", humanize(dimension))
	for i, opt := range options {
		fmt.Fprintf(&b, " %d) %s", i+1, opt.Label)
	}
	return b.String()
}

func humanize(dimension string) string {
	return strings.ToLower(strings.ReplaceAll(dimension, "_", " "))
}

// stopwords are reply tokens that never identify an option.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "it": true,
	"what": true, "whats": true, "how": true, "much": true,
	"for": true, "of": true, "my": true, "one": true, "option": true,
	"please": true, "fee": true, "charge": true, "per": true,
	"bdt": true, "usd": true,
}

// resolveReply maps the user's raw reply to one of the pending options,
// or nil when the reply identifies none. A leading integer is an ordinal
// into the numbered prompt; otherwise the reply's significant tokens are
// matched against option labels in stored order, first match winning.
func resolveReply(rawText string, options []domain.Option) *domain.Option {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil
	}

	// Ordinal reply: "2" or "2." or "2)".
	lead := text
	if i := strings.IndexAny(lead, ".) "); i > 0 {
		lead = lead[:i]
	}
	if n, err := strconv.Atoi(lead); err == nil {
		if n >= 1 && n <= len(options) {
			return &options[n-1]
		}
		return nil
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	for i := range options {
		label := strings.ToLower(options[i].Label)
		value := strings.ToLower(options[i].Value)
		for _, tok := range tokens {
			if strings.Contains(label, tok) || strings.Contains(value, tok) {
				return &options[i]
			}
		}
	}
	return nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	var out []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
