package suggest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrNoOutput = errors.New("remote returned no output")

// OutputError lists every structural problem found in a remote result.
type OutputError struct {
	Problems []string
	Err      error
}

func (e *OutputError) Error() string {
	if e.Err != nil {
		return "invalid suggestion output: " + e.Err.Error()
	}
	return "invalid suggestion output: " + strings.Join(e.Problems, "; ")
}

func (e *OutputError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseOutput decodes a remote result and validates all of it: every day,
// every event and every step, not just the first of each.
func ParseOutput(raw []byte) (Output, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Output{}, ErrNoOutput
	}
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return Output{}, &OutputError{Err: err}
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Output{}, &OutputError{Err: err}
		}
		oe := &OutputError{}
		for _, fe := range verrs {
			ns := strings.TrimPrefix(fe.Namespace(), "Output.")
			oe.Problems = append(oe.Problems, fmt.Sprintf("%s failed %s", ns, fe.Tag()))
		}
		return Output{}, oe
	}
	return out, nil
}

// validInput checks preferences and coordinates; the date is checked
// separately so it can fail with a DateTimeError.
func validInput(in Input) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ie := &InputError{Fields: map[string]string{}}
	for _, fe := range verrs {
		ie.Fields[strings.TrimPrefix(fe.Namespace(), "Input.")] = fmt.Sprintf("failed %s check", fe.Tag())
	}
	return ie
}

type InputError struct {
	Fields map[string]string
}

func (e *InputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	sort.Strings(parts)
	return "invalid suggestion request: " + strings.Join(parts, "; ")
}
