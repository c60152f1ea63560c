package models

import (
	"errors"
	"fmt"
)

// OutcomeKind tags a PageOutcome.
type OutcomeKind string

const (
	OutcomeSuccess              OutcomeKind = "success"
	OutcomeCaptchaDetected      OutcomeKind = "captcha_detected"
	OutcomeProductUnavailable   OutcomeKind = "product_unavailable"
	OutcomeEssentialDataMissing OutcomeKind = "essential_data_missing"
	OutcomeDriverInitError      OutcomeKind = "driver_init_error"
	OutcomeParseError           OutcomeKind = "parse_error"
	OutcomeWorkerCriticalError  OutcomeKind = "worker_critical_error"
)

var (
	ErrCaptchaDetected      = errors.New("captcha detected")
	ErrProductUnavailable   = errors.New("product unavailable")
	ErrEssentialDataMissing = errors.New("essential data missing")
	ErrDriverInit           = errors.New("driver init failed")
	ErrParse                = errors.New("parse failed")
	ErrWorkerCritical       = errors.New("worker critical error")
)

var kindErrors = map[OutcomeKind]error{
	OutcomeCaptchaDetected:      ErrCaptchaDetected,
	OutcomeProductUnavailable:   ErrProductUnavailable,
	OutcomeEssentialDataMissing: ErrEssentialDataMissing,
	OutcomeDriverInitError:      ErrDriverInit,
	OutcomeParseError:           ErrParse,
	OutcomeWorkerCriticalError:  ErrWorkerCritical,
}

// PageOutcome is the result of fetching and classifying one URL.
// Record is set only for OutcomeSuccess.
type PageOutcome struct {
	Kind    OutcomeKind    `json:"status"`
	URL     string         `json:"url,omitempty"`
	Message string         `json:"message,omitempty"`
	Record  *ProductRecord `json:"record,omitempty"`
}

func Success(r ProductRecord) PageOutcome {
	return PageOutcome{Kind: OutcomeSuccess, URL: r.URL, Record: &r}
}

func CaptchaDetected(url string) PageOutcome {
	return PageOutcome{Kind: OutcomeCaptchaDetected, URL: url}
}

func ProductUnavailable(url, message string) PageOutcome {
	return PageOutcome{Kind: OutcomeProductUnavailable, URL: url, Message: message}
}

func EssentialDataMissing(url, message string) PageOutcome {
	return PageOutcome{Kind: OutcomeEssentialDataMissing, URL: url, Message: message}
}

func DriverInitError(url string, err error) PageOutcome {
	o := PageOutcome{Kind: OutcomeDriverInitError, URL: url}
	if err != nil {
		o.Message = err.Error()
	}
	return o
}

func ParseError(url, message string) PageOutcome {
	return PageOutcome{Kind: OutcomeParseError, URL: url, Message: message}
}

func WorkerCriticalError(url, message string) PageOutcome {
	return PageOutcome{Kind: OutcomeWorkerCriticalError, URL: url, Message: message}
}

func (o PageOutcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess && o.Record != nil
}

// Err returns nil for successes and an *OutcomeError otherwise.
func (o PageOutcome) Err() error {
	if o.IsSuccess() {
		return nil
	}
	return &OutcomeError{Kind: o.Kind, URL: o.URL, Message: o.Message}
}

// OutcomeError carries a non-success outcome through error returns.
type OutcomeError struct {
	Kind    OutcomeKind
	URL     string
	Message string
}

func (e *OutcomeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.URL, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.URL)
}

// Is matches the per-kind sentinel errors.
func (e *OutcomeError) Is(target error) bool {
	return kindErrors[e.Kind] == target
}
