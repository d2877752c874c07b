package conditions

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/popupkit/popupkit/internal/cache"
)

// celPayload is the conditions payload understood by the CEL evaluator.
type celPayload struct {
	Expr string `json:"expr"`
}

// CELEvaluator evaluates conditions payloads of the form
// {"expr": "<cel expression>"} against the evaluation context.
// Compiled programs are cached per expression.
//
// Available variables: weekday (0=Sunday), hour, minute, date
// ("YYYY-MM-DD"), month, shop, schedule, type, priority.
//
// Evaluation is fail-open: a payload that does not compile or does not
// evaluate to a boolean keeps the schedule eligible, preserving the
// default always-true semantics, and the failure is logged.
type CELEvaluator struct {
	env      *cel.Env
	programs *cache.LRU[string, cel.Program]
}

// NewCELEvaluator builds the evaluator and its expression environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("weekday", cel.IntType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("minute", cel.IntType),
		cel.Variable("date", cel.StringType),
		cel.Variable("month", cel.IntType),
		cel.Variable("shop", cel.StringType),
		cel.Variable("schedule", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("priority", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	return &CELEvaluator{
		env:      env,
		programs: cache.NewLRU[string, cel.Program](256, time.Hour),
	}, nil
}

func (e *CELEvaluator) Evaluate(payload json.RawMessage, evalCtx Context) bool {
	if len(payload) == 0 {
		return true
	}

	var cond celPayload
	if err := json.Unmarshal(payload, &cond); err != nil {
		slog.Warn("unparseable conditions payload, treating as eligible", "schedule", evalCtx.Schedule, "error", err)
		return true
	}
	if cond.Expr == "" {
		return true
	}

	prg, err := e.program(cond.Expr)
	if err != nil {
		slog.Warn("invalid conditions expression, treating as eligible", "schedule", evalCtx.Schedule, "error", err)
		return true
	}

	out, _, err := prg.Eval(map[string]any{
		"weekday":  int64(evalCtx.At.Weekday()),
		"hour":     int64(evalCtx.At.Hour()),
		"minute":   int64(evalCtx.At.Minute()),
		"date":     evalCtx.At.Format("2006-01-02"),
		"month":    int64(evalCtx.At.Month()),
		"shop":     evalCtx.ShopID,
		"schedule": evalCtx.Schedule,
		"type":     evalCtx.Type,
		"priority": int64(evalCtx.Priority),
	})
	if err != nil {
		slog.Warn("conditions evaluation failed, treating as eligible", "schedule", evalCtx.Schedule, "error", err)
		return true
	}

	result, ok := out.Value().(bool)
	if !ok {
		slog.Warn("conditions expression is not boolean, treating as eligible", "schedule", evalCtx.Schedule)
		return true
	}
	return result
}

// Compile checks an expression without evaluating it, for use at
// schedule creation time.
func (e *CELEvaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *CELEvaluator) program(expr string) (cel.Program, error) {
	if prg, ok := e.programs.Get(expr); ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.programs.SetWithDefaultTTL(expr, prg)
	return prg, nil
}
