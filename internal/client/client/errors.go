package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alprslanymeria/oauthserver/internal/common"
)

var (
	ErrUnavailable = errors.New("server unavailable")
	ErrNoSession   = errors.New("not logged in")
)

type errorBody struct {
	Errors []string `json:"errors"`
}

// kindOf maps an HTTP status back to the taxonomy kind the server used.
func kindOf(status int) error {
	switch status {
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrorForbidden
	case http.StatusConflict:
		return common.ErrorConflict
	case http.StatusBadRequest:
		return common.ErrorBusiness
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	default:
		return common.ErrorInternal
	}
}

func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Errors) == 0 {
		body.Errors = []string{http.StatusText(resp.StatusCode)}
	}
	return common.NewError(kindOf(resp.StatusCode), body.Errors...)
}
