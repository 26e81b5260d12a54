package kiwoom

import (
	"fmt"
	"time"
)

// RawRecord is one entry of the realized P/L array as the broker sends it:
// field names are the broker's, values are in their wire representation.
type RawRecord map[string]string

// Credential is a bearer token and the moment it stops being accepted.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// AuthError reports a failed token exchange. Nothing that needs a credential
// can proceed after one.
type AuthError struct {
	StatusCode int
	ReturnCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("kiwoom auth: %v", e.Err)
	case e.StatusCode != 0 && e.StatusCode != 200:
		return fmt.Sprintf("kiwoom auth: status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("kiwoom auth: return code %d: %s", e.ReturnCode, e.Message)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a failed realized P/L query. Records gathered from
// earlier pages of the same query are not returned with it.
type FetchError struct {
	Start, End string
	Page       int
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kiwoom fetch %s..%s page %d: %v", e.Start, e.End, e.Page, e.Err)
	}
	return fmt.Sprintf("kiwoom fetch %s..%s page %d: status %d: %s", e.Start, e.End, e.Page, e.StatusCode, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NormalizeWarning flags a value or record the normalizer could not use.
// Index is the record position, or -1 for a problem with the whole batch.
type NormalizeWarning struct {
	Index  int
	Field  string
	Value  string
	Reason string
}

func (w NormalizeWarning) Error() string {
	if w.Index < 0 {
		return "normalize: " + w.Reason
	}
	return fmt.Sprintf("normalize record %d field %s=%q: %s", w.Index, w.Field, w.Value, w.Reason)
}
