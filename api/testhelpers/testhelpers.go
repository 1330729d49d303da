// Package testhelpers builds authenticated requests for handler tests
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/disputes"
)

// Request builds a request carrying actor on its context, as Middleware
// would, with the given mux vars and a JSON encoded body
func Request(t *testing.T, method, target string, actor disputes.Actor, vars map[string]string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			buf, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			reader = bytes.NewBuffer(buf)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	if actor.UserID != "" {
		req = req.WithContext(api.WithActor(req.Context(), actor))
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

// Serve runs handler against req and returns the recorder
func Serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
