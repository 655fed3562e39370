package triage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("duplicate record")
	ErrDuplicateClaim      = fmt.Errorf("patch already claimed by user: %w", ErrDuplicate)
	ErrPatchResolved       = errors.New("patch is already resolved")
	ErrValidation          = errors.New("validation failed")
	ErrTransaction         = errors.New("transaction failed")
	ErrImportSourceMissing = errors.New("import source does not exist")
	ErrImportInvalid       = errors.New("import document is invalid")
	ErrExternalLookup      = errors.New("external lookup failed")
	ErrRateLimited         = errors.New("external lookup rate limited")
	ErrCommitNotFound      = errors.New("commit metadata not found")
	ErrForbidden           = errors.New("admin capability required")
)

// FieldError is one violated rule on one attribute.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError enumerates every violated field of a rejected write.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}

	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Has reports whether the given field has at least one violation.
func (e *ValidationError) Has(field string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	sort.SliceStable(e.Fields, func(i, j int) bool { return e.Fields[i].Field < e.Fields[j].Field })
	return e
}

// TransactionError reports a storage failure inside an all-or-nothing block.
// Nothing from the block was committed.
type TransactionError struct {
	Op  string
	Err error
}

func NewTransactionError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransactionError{Op: op, Err: err}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrTransaction.Error(), e.Err)
}

func (e *TransactionError) Unwrap() []error { return []error{ErrTransaction, e.Err} }

// IsDomainError reports whether err already carries a caller-facing classification.
func IsDomainError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrPatchResolved) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrImportInvalid)
}
