package presenter

import (
	"encoding/json"

	"github.com/learnsphere/moderation/internal/model"
)

// Failure describes a failed command.
type Failure struct {
	Kind    model.ErrorKind `json:"kind"`
	Field   string          `json:"field,omitempty"`
	Message string          `json:"message"`
	// NoOp is set when the target already was in the requested state.
	NoOp bool `json:"noop,omitempty"`
}

// Retryable reports whether the command may succeed if issued again.
func (f *Failure) Retryable() bool {
	return f != nil && f.Kind.Retryable()
}

func failureOf(err error) *Failure {
	e := model.AsError(err)
	if e == nil {
		return nil
	}
	return &Failure{Kind: e.Kind, Field: e.Field, Message: e.Error(), NoOp: e.NoOp}
}

// Result is either a value or a failure, never both.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

// OK reports whether the command succeeded.
func (r Result[T]) OK() bool {
	return r.Failure == nil
}

// Err returns the failure as a domain error, or nil.
func (r Result[T]) Err() error {
	if r.Failure == nil {
		return nil
	}
	return &model.Error{Kind: r.Failure.Kind, Field: r.Failure.Field, Message: r.Failure.Message, NoOp: r.Failure.NoOp}
}

// MarshalJSON encodes {ok:true,value} or {ok:false,kind,message,field}.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(struct {
			OK bool `json:"ok"`
			*Failure
		}{false, r.Failure})
	}

	return json.Marshal(struct {
		OK    bool `json:"ok"`
		Value T    `json:"value"`
	}{true, r.Value})
}

// ResultOf builds the Result of an operation returning value and err.
func ResultOf[T any](value T, err error) Result[T] {
	if err != nil {
		return Result[T]{Failure: failureOf(err)}
	}
	return Result[T]{Value: value}
}
