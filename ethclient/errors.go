package ethclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorClass tells callers how to react to a failed RPC request.
type ErrorClass int

const (
	ErrorClassFatal ErrorClass = iota
	ErrorClassTransient
	ErrorClassRangeTooLarge
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassRangeTooLarge:
		return "range_too_large"
	default:
		return "fatal"
	}
}

// provider specific replies to an eth_getLogs request spanning too many blocks or logs
var rangeTooLargeMessages = []string{
	"query returned more than",
	"block range",
	"range is too large",
	"exceed maximum block range",
	"log response size exceeded",
	"too many blocks",
	"response size should not greater than",
}

// provider replies reporting request throttling, some of them reuse the limit exceeded code
var rateLimitMessages = []string{
	"rate limit",
	"request rate exceeded",
	"too many requests",
	"exceeded the quota",
	"capacity exceeded",
}

const (
	rpcCodeLimitExceeded = -32005
	rpcCodeInvalidParams = -32602
)

func ClassifyError(err error) ErrorClass {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Error())
		for _, s := range rateLimitMessages {
			if strings.Contains(msg, s) {
				return ErrorClassTransient
			}
		}
		for _, s := range rangeTooLargeMessages {
			if strings.Contains(msg, s) {
				return ErrorClassRangeTooLarge
			}
		}
		switch rpcErr.ErrorCode() {
		case rpcCodeLimitExceeded:
			return ErrorClassRangeTooLarge
		case rpcCodeInvalidParams:
			return ErrorClassFatal
		}
		return ErrorClassTransient
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError {
			return ErrorClassTransient
		}
		return ErrorClassFatal
	}
	switch {
	case errors.Is(err, ErrNodeIsNotSynced),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTransient
	case errors.Is(err, ErrInvalidLogsQuery),
		errors.Is(err, syscall.ECONNREFUSED):
		return ErrorClassFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTransient
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorClassFatal
	}
	return ErrorClassTransient
}
