// Package resolution answers a caller's question from the cheapest source that
// can: static business facts, then learned answers, then a supervisor.
package resolution

import (
	"context"
	"fmt"

	"frontdesk/helprequest"
	"frontdesk/metrics"

	"go.uber.org/zap"
)

type Source string

const (
	SourceStatic    Source = "static"
	SourceLearned   Source = "learned"
	SourceEscalated Source = "escalated"
)

type Matcher interface {
	Match(question string) (string, bool)
}

type AnswerLookup interface {
	Lookup(ctx context.Context, question string) (string, bool, error)
}

type Escalator interface {
	Create(ctx context.Context, params helprequest.CreateParams) (helprequest.HelpRequest, error)
}

// Call is one caller turn.
type Call struct {
	CallerName  string
	CallerPhone string
	Question    string
}

// Outcome carries either an Answer or, when Source is escalated, the pending
// Request created for a supervisor.
type Outcome struct {
	Source  Source
	Answer  string
	Request *helprequest.HelpRequest
}

// Escalated reports whether the caller is waiting on a supervisor.
func (o Outcome) Escalated() bool {
	return o.Source == SourceEscalated
}

type Orchestrator struct {
	matcher   Matcher
	answers   AnswerLookup
	escalator Escalator
	logger    *zap.Logger
}

func NewOrchestrator(matcher Matcher, answers AnswerLookup, escalator Escalator) *Orchestrator {
	return &Orchestrator{
		matcher:   matcher,
		answers:   answers,
		escalator: escalator,
		logger:    zap.NewNop(),
	}
}

func (o *Orchestrator) WithLogger(logger *zap.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// Resolve short-circuits on the first source that answers. Static and learned
// answers persist nothing; only escalation writes a help request.
func (o *Orchestrator) Resolve(ctx context.Context, call Call) (Outcome, error) {
	params, err := helprequest.NormalizeCreate(helprequest.CreateParams{
		CallerName:  call.CallerName,
		CallerPhone: call.CallerPhone,
		Question:    call.Question,
	})
	if err != nil {
		return Outcome{}, err
	}

	if answer, ok := o.matcher.Match(params.Question); ok {
		return o.answered(SourceStatic, params, answer), nil
	}

	answer, ok, err := o.answers.Lookup(ctx, params.Question)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolution: lookup learned answer: %w", err)
	}
	if ok {
		return o.answered(SourceLearned, params, answer), nil
	}

	req, err := o.escalator.Create(ctx, params)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolution: escalate: %w", err)
	}
	metrics.ResolutionsTotal.WithLabelValues(string(SourceEscalated)).Inc()
	o.logger.Info("question escalated",
		zap.String("caller_name", params.CallerName),
		zap.String("request_id", req.ID))
	return Outcome{Source: SourceEscalated, Request: &req}, nil
}

func (o *Orchestrator) answered(source Source, params helprequest.CreateParams, answer string) Outcome {
	metrics.ResolutionsTotal.WithLabelValues(string(source)).Inc()
	o.logger.Info("question answered",
		zap.String("source", string(source)),
		zap.String("caller_name", params.CallerName),
		zap.String("question", params.Question))
	return Outcome{Source: source, Answer: answer}
}
