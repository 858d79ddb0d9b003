package recognizer

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docscan/pkg/models"
)

// ErrorKind classifies a backend failure for the retry policy.
type ErrorKind int

const (
	// NetworkFailure covers transport errors and timeouts. Retried.
	NetworkFailure ErrorKind = iota
	// RateLimited means the backend asked us to slow down. Retried after
	// RetryAfter when known.
	RateLimited
	// ServerError is a 5xx-class failure on the backend side. Retried.
	ServerError
	// ClientError means the request itself was rejected. Never retried.
	ClientError
	// Unavailable means the backend is not configured or its engine cannot
	// start. Never retried.
	Unavailable
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkFailure:
		return "network failure"
	case RateLimited:
		return "rate limited"
	case ServerError:
		return "server error"
	case ClientError:
		return "client error"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Retryable reports whether the retry policy may call the backend again.
func (k ErrorKind) Retryable() bool {
	return k == NetworkFailure || k == RateLimited || k == ServerError
}

// ErrEmptyText is returned by backends that recognized nothing.
var ErrEmptyText = errors.New("no text recognized")

// ErrNoResponse marks a call that returned neither a response nor an error.
var ErrNoResponse = errors.New("backend returned no response")

// Error is a classified backend failure.
type Error struct {
	Backend models.Service
	Kind    ErrorKind
	// Code is the HTTP status or gRPC code when the failure came from a
	// response, zero otherwise.
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Backend))
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Code != 0 {
		fmt.Fprintf(&b, " (%d)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with a kind.
func NewError(backend models.Service, kind ErrorKind, err error) *Error {
	return &Error{Backend: backend, Kind: kind, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// FromHTTP classifies an HTTP response status. It returns nil for 2xx.
// retryAfter is the raw Retry-After header, either delay seconds or an
// HTTP date.
func FromHTTP(backend models.Service, statusCode int, retryAfter string, err error) *Error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if err == nil {
		err = errors.New(http.StatusText(statusCode))
	}
	e := &Error{Backend: backend, Code: statusCode, Err: err}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Kind = RateLimited
		e.RetryAfter = parseRetryAfter(retryAfter, time.Now())
	case statusCode == http.StatusRequestTimeout:
		e.Kind = NetworkFailure
	case statusCode >= 400 && statusCode < 500:
		e.Kind = ClientError
	case statusCode >= 500:
		e.Kind = ServerError
		e.RetryAfter = parseRetryAfter(retryAfter, time.Now())
	default:
		e.Kind = ClientError
	}
	return e
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// FromGRPC classifies an error returned by a Google client. Errors that carry
// no gRPC status (dial failures, context errors) are network failures; the
// retry policy checks context errors itself.
func FromGRPC(backend models.Service, err error) *Error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &Error{Backend: backend, Kind: NetworkFailure, Err: err}
	}

	e := &Error{Backend: backend, Code: int(st.Code()), Err: err}
	switch st.Code() {
	case codes.ResourceExhausted:
		e.Kind = RateLimited
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
				e.RetryAfter = info.GetRetryDelay().AsDuration()
			}
		}
	case codes.Unavailable, codes.DeadlineExceeded:
		e.Kind = NetworkFailure
	case codes.Internal, codes.Unknown, codes.Aborted, codes.DataLoss:
		e.Kind = ServerError
	default:
		// InvalidArgument, NotFound, PermissionDenied, Unauthenticated,
		// FailedPrecondition, Unimplemented, Canceled and the rest
		e.Kind = ClientError
	}
	return e
}
