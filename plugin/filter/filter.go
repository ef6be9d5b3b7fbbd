// Package filter compiles CEL filter expressions over email attributes
// into SQL conditions. Filters arrive from tool parameters and from the
// list API; compiling them here keeps the drivers free of expression
// parsing and keeps user input out of the SQL text.
package filter

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// MaxExpressionLength bounds filter input. Longer expressions are almost
// certainly not hand-written and are rejected before parsing.
const MaxExpressionLength = 512

// Email filter attributes. Identifiers not listed here fail type checking.
var emailFilterAttributes = []cel.EnvOption{
	cel.Variable("sender", cel.StringType),
	cel.Variable("sender_domain", cel.StringType),
	cel.Variable("subject", cel.StringType),
	cel.Variable("folder", cel.StringType),
	cel.Variable("thread_id", cel.StringType),
	cel.Variable("unread", cel.BoolType),
	cel.Variable("has_attachment", cel.BoolType),
	cel.Variable("size_bytes", cel.IntType),
	cel.Variable("received_ts", cel.IntType),
	cel.Variable("labels", cel.ListType(cel.StringType)),
}

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func getEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(emailFilterAttributes...)
	})
	return env, envErr
}

// Parse type-checks a filter expression against the email attribute schema
// and returns its AST.
func Parse(expression string) (*cel.Ast, error) {
	if len(expression) > MaxExpressionLength {
		return nil, errors.Errorf("filter expression exceeds %d characters", MaxExpressionLength)
	}
	e, err := getEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter environment")
	}
	ast, issues := e.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid filter expression: %s", expression)
	}
	return ast, nil
}

// Validate reports whether the expression parses and type-checks. It is
// used at the API boundary so bad filters fail the request instead of the
// later DB query.
func Validate(expression string) error {
	_, err := Parse(expression)
	return err
}
