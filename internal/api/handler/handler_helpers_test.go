package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/model"
)

// validID is the request id the stub repository seeds in most tests.
const validID = "9f0c1d8e-3b7a-4c52-a1e6-2d4f5b6c7a80"

// newRequest builds a JSON request. A nil body sends no payload.
func newRequest(method, target string, body any) *http.Request {
	if body == nil {
		return newRequestRaw(method, target, "")
	}
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return newRequestRaw(method, target, string(b))
}

// newRequestRaw builds a request whose body is sent verbatim.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam sets a route parameter the way the chi router would,
// adding to any route context already on the request.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return r
}

// withUser authenticates r as userID with role.
func withUser(r *http.Request, userID, role string) *http.Request {
	claims := &model.JWTClaims{UserID: userID, Role: role}
	return r.WithContext(mw.WithClaims(r.Context(), claims))
}

// decodeErrorResponse returns the {"error": ...} body of a failed call.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	body := map[string]string{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}
