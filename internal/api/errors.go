package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
)

// errorClass is the provider-agnostic failure taxonomy exposed to callers.
// Raw provider errors never leave the process; each class has one fixed
// response.
type errorClass int

const (
	classRateLimited errorClass = iota
	classOverloaded
	classAccessDenied
	classUnexpected
)

// HTTP 529 is not a registered status code but the conventional "site is
// overloaded" signal callers of this API expect.
const statusOverloaded = 529

func (c errorClass) String() string {
	switch c {
	case classRateLimited:
		return "rate_limited"
	case classOverloaded:
		return "overloaded"
	case classAccessDenied:
		return "access_denied"
	default:
		return "unexpected"
	}
}

func (c errorClass) status() int {
	switch c {
	case classRateLimited:
		return http.StatusTooManyRequests
	case classOverloaded:
		return statusOverloaded
	case classAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (c errorClass) message() string {
	switch c {
	case classRateLimited:
		return "The provider is currently unavailable due to request limit. Try using your own API key."
	case classOverloaded:
		return "The provider is currently unavailable. Please try again later."
	case classAccessDenied:
		return "Access denied. Please make sure your API key is valid."
	default:
		return "An unexpected error has occurred. Please try again later."
	}
}

// classifyProviderError maps a provider failure onto the fixed taxonomy.
// Order matters: a 429 or a limit-exceeded message is the provider's own
// quota, checked before the overload statuses.
func classifyProviderError(err error) errorClass {
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		return classUnexpected
	}

	switch {
	case perr.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(perr.Message), "limit"):
		return classRateLimited
	case perr.StatusCode == statusOverloaded || perr.StatusCode == http.StatusServiceUnavailable:
		return classOverloaded
	case perr.StatusCode == http.StatusForbidden || perr.StatusCode == http.StatusUnauthorized:
		return classAccessDenied
	default:
		return classUnexpected
	}
}
