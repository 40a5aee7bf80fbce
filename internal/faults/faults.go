package faults

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies a failure so callers can decide between surfacing field
// messages, denying access, or retrying.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInvalidCredential Kind = "invalid_credential"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindStoreTimeout      Kind = "store_timeout"
	KindInternal          Kind = "internal"
)

// Fault is the typed failure returned by every service operation. Business
// failures carry field-keyed messages; infrastructure failures carry a cause.
type Fault struct {
	kind      Kind
	operation string
	fields    map[string]string
	cause     error
}

func (f *Fault) Error() string {
	parts := []string{fmt.Sprintf("%s: %s", f.operation, f.kind)}
	if len(f.fields) > 0 {
		keys := make([]string, 0, len(f.fields))
		for key := range f.fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			pairs = append(pairs, key+" "+f.fields[key])
		}
		parts = append(parts, strings.Join(pairs, ", "))
	}
	if f.cause != nil {
		parts = append(parts, f.cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (f *Fault) Unwrap() error {
	return f.cause
}

// Kind reports the failure classification.
func (f *Fault) Kind() Kind {
	return f.kind
}

// Operation reports the dotted operation code the fault originated from.
func (f *Fault) Operation() string {
	return f.operation
}

// Fields returns the field-keyed messages, nil when none were recorded.
func (f *Fault) Fields() map[string]string {
	if len(f.fields) == 0 {
		return nil
	}
	copied := make(map[string]string, len(f.fields))
	for key, value := range f.fields {
		copied[key] = value
	}
	return copied
}

// Retryable reports whether the caller may safely retry the operation.
func (f *Fault) Retryable() bool {
	return f.kind == KindStoreTimeout
}

// WithField records an additional field-keyed message.
func (f *Fault) WithField(field, message string) *Fault {
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	f.fields[field] = message
	return f
}

// New constructs a fault of the given kind wrapping an optional cause.
func New(kind Kind, operation string, cause error) *Fault {
	return &Fault{kind: kind, operation: operation, cause: cause}
}

// Validation reports malformed or missing input on a single field.
func Validation(operation, field, message string) *Fault {
	fault := New(KindValidation, operation, nil)
	return fault.WithField(field, message)
}

// InvalidCredential reports a login failure scoped to a credential field.
func InvalidCredential(operation, field, message string) *Fault {
	fault := New(KindInvalidCredential, operation, nil)
	return fault.WithField(field, message)
}

// Unauthorized reports a missing or invalid credential or token.
func Unauthorized(operation string, cause error) *Fault {
	return New(KindUnauthorized, operation, cause)
}

// Forbidden reports an authenticated but unpermitted action.
func Forbidden(operation string) *Fault {
	return New(KindForbidden, operation, nil)
}

// NotFound reports an absent referenced record.
func NotFound(operation, resource string) *Fault {
	fault := New(KindNotFound, operation, nil)
	return fault.WithField(resource, "not found")
}

// KindOf extracts the Kind from an error chain, KindInternal when untyped.
func KindOf(err error) Kind {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.kind
	}
	return KindInternal
}

// FieldsOf extracts field-keyed messages from an error chain, nil when absent.
func FieldsOf(err error) map[string]string {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Fields()
	}
	return nil
}

// FromStore classifies an error returned by the persistence layer. Missing
// records become NotFound, deadline expiry becomes a retryable StoreTimeout,
// everything else escalates as Internal.
func FromStore(operation string, err error) *Fault {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return New(KindNotFound, operation, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return New(KindStoreTimeout, operation, err)
	default:
		return New(KindInternal, operation, err)
	}
}
