package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/labtiva/curator/internal/action"
)

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// responseError reads an error response and classifies it by status code.
func responseError(res *esapi.Response, what string) error {
	body, _ := io.ReadAll(res.Body)

	msg := string(body)
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Type != "" {
		msg = eb.Error.Type + ": " + eb.Error.Reason
	}
	err := fmt.Errorf("%s: ES error %s: %s", what, res.Status(), msg)
	return action.NewFailure(statusKind(res.StatusCode), err)
}

func statusKind(code int) action.FailureKind {
	switch code {
	case http.StatusNotFound:
		return action.NotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return action.PermissionDenied
	case http.StatusBadRequest, http.StatusConflict:
		return action.ConflictingState
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return action.Transient
	}
	return action.Unknown
}

// transportError classifies an error that happened before a response was
// received. Anything but an explicit cancellation may go away on retry.
func transportError(err error, what string) error {
	wrapped := fmt.Errorf("%s: %w", what, err)
	if errors.Is(err, context.Canceled) {
		return action.NewFailure(action.Unknown, wrapped)
	}
	return action.NewFailure(action.Transient, wrapped)
}
