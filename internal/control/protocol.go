// Package control implements the line-oriented ASCII control protocol
// spec.md §6 specifies: command/query parsing, response rendering, and
// a verb-to-handler dispatch table bound to a transfer.Runtime. The
// parser/dispatch *table* itself is named out of scope in spec.md §1 as
// an external collaborator, but the wire grammar is fully specified and
// exercised by S3/S4, so this package implements the grammar and seeds
// the table with a representative subset of modes.
package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jive-evlbi/chaind/internal/errs"
)

// Command is a parsed control-protocol line: a verb, whether it was a
// query ("?") or a command ("="), and its colon-separated arguments.
type Command struct {
	Verb  string
	Query bool
	Args  []string
}

// Parse splits a line of the form "verb = arg1 : arg2 ... ;" or
// "verb ? arg1 : ... ;" into a Command (spec.md §6's wire grammar).
// The trailing ';' is optional on input: callers that split an input
// stream on ';' themselves won't have one left to strip.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(strings.TrimSpace(line), ";")
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("control: empty command")
	}

	eq := strings.IndexByte(line, '=')
	q := strings.IndexByte(line, '?')

	var sepIdx int
	var isQuery bool
	switch {
	case eq == -1 && q == -1:
		return Command{}, fmt.Errorf("control: %q has neither '=' nor '?'", line)
	case eq == -1:
		sepIdx, isQuery = q, true
	case q == -1:
		sepIdx, isQuery = eq, false
	case q < eq:
		sepIdx, isQuery = q, true
	default:
		sepIdx, isQuery = eq, false
	}

	verb := strings.TrimSpace(line[:sepIdx])
	if verb == "" {
		return Command{}, fmt.Errorf("control: %q has an empty verb", line)
	}

	rest := strings.TrimSpace(line[sepIdx+1:])
	var args []string
	if rest != "" {
		for _, a := range strings.Split(rest, ":") {
			args = append(args, strings.TrimSpace(a))
		}
	}
	return Command{Verb: verb, Query: isQuery, Args: args}, nil
}

// ParseCommand parses line and requires it to be a command ("verb =
// ..."), returning an error if it is actually a query.
func ParseCommand(line string) (Command, error) {
	c, err := Parse(line)
	if err != nil {
		return Command{}, err
	}
	if c.Query {
		return Command{}, fmt.Errorf("control: %q is a query, not a command", line)
	}
	return c, nil
}

// ParseQuery parses line and requires it to be a query ("verb ?
// ..."), returning an error if it is actually a command.
func ParseQuery(line string) (Command, error) {
	c, err := Parse(line)
	if err != nil {
		return Command{}, err
	}
	if !c.Query {
		return Command{}, fmt.Errorf("control: %q is a command, not a query", line)
	}
	return c, nil
}

// Response is a control-protocol reply: "! verb = code [: text]* ;" or
// "! verb ? code [: text]* ;" (spec.md §6).
type Response struct {
	Verb  string
	Query bool
	Code  errs.Code
	Text  []string
}

// String renders r in the exact wire format spec.md §6 specifies.
func (r Response) String() string {
	var b strings.Builder
	b.WriteString("! ")
	b.WriteString(r.Verb)
	if r.Query {
		b.WriteString(" ? ")
	} else {
		b.WriteString(" = ")
	}
	b.WriteString(strconv.Itoa(int(r.Code)))
	for _, t := range r.Text {
		b.WriteString(" : ")
		b.WriteString(t)
	}
	b.WriteString(" ;")
	return b.String()
}

// OK builds a bare success response for verb (spec.md §8 S1-style
// "! verb = 0 ;").
func OK(verb string, query bool) Response {
	return Response{Verb: verb, Query: query, Code: errs.CodeOK}
}

// FromError builds a Response from a verb and an error, extracting the
// error's errs.Code (defaulting to CodeRuntimeError for a plain
// error) and using its message as the sole text field: an errs.Error's
// bare Msg, or err.Error() for any other error.
func FromError(verb string, query bool, err error) Response {
	if err == nil {
		return OK(verb, query)
	}
	code := errs.CodeRuntimeError
	text := err.Error()
	if ce, ok := asChaindError(err); ok {
		code = ce.Code
		text = ce.Msg
	}
	return Response{Verb: verb, Query: query, Code: code, Text: []string{text}}
}

func asChaindError(err error) (*errs.Error, bool) {
	type causer interface{ Unwrap() error }
	for e := err; e != nil; {
		if c, ok := e.(*errs.Error); ok {
			return c, true
		}
		cu, ok := e.(causer)
		if !ok {
			break
		}
		e = cu.Unwrap()
	}
	return nil, false
}
