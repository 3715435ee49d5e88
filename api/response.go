package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Response is a raw response that wraps an HTTP response.
type Response struct {
	*http.Response
	cancel context.CancelFunc
}

// DecodeJSON decodes the body into out and closes it.
func (r *Response) DecodeJSON(out interface{}) error {
	defer r.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

// Close releases the body and any timeout attached to the request.
func (r *Response) Close() error {
	if r.cancel != nil {
		defer r.cancel()
	}
	if r.Body == nil {
		return nil
	}
	io.Copy(io.Discard, r.Body)
	return r.Body.Close()
}

// Error returns an error response if there is one. If there is an error,
// this will fully consume the response body, but will not close it. The
// body must still be closed manually.
func (r *Response) Error() error {
	if r.StatusCode >= 200 && r.StatusCode < 400 {
		return nil
	}

	respErr := &ResponseError{
		HTTPMethod: r.Request.Method,
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
	}

	var body struct {
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		respErr.Errors = body.Errors
	}
	return respErr
}

// ResponseError is the error returned when the server answers with a
// non-success status.
type ResponseError struct {
	HTTPMethod string
	URL        string
	StatusCode int
	Errors     []string
}

func (r *ResponseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error making API request.\n\nURL: %s %s\nCode: %d.", r.HTTPMethod, r.URL, r.StatusCode)
	if len(r.Errors) > 0 {
		b.WriteString(" Errors:\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "* %s\n", e)
		}
	}
	return b.String()
}

// IsStatus reports whether err is a ResponseError with the given status.
func IsStatus(err error, status int) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == status
}
