package testutil

import "net/http"

// AsOperator sets the operator header for requests that go through the router
// without a token validator.
func AsOperator(req *http.Request, operatorID string) *http.Request {
	req.Header.Set("X-Operator-ID", operatorID)
	return req
}
