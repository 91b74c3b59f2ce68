package request

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireID_Valid(t *testing.T) {
	result, err := RequireID("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", result)
}

func TestRequireID_Empty(t *testing.T) {
	_, err := RequireID("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required ID")
}

func decodeString(t *testing.T, body string, v any) error {
	t.Helper()
	r, err := http.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	require.NoError(t, err)
	return Decode(r, v)
}

func TestDecode_ValidJSON(t *testing.T) {
	var payload Login
	err := decodeString(t, `{"email":"pilot@example.com","password":"secret"}`, &payload)
	require.NoError(t, err)
	assert.Equal(t, "pilot@example.com", payload.Email)
}

func TestDecode_InvalidJSON(t *testing.T) {
	var payload Login
	err := decodeString(t, `{not valid json}`, &payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestDecode_UnknownField(t *testing.T) {
	var payload Login
	err := decodeString(t, `{"email":"pilot@example.com","password":"x","admin":true}`, &payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestDecode_ValidationFails(t *testing.T) {
	var payload Login
	err := decodeString(t, `{"email":"not-an-email","password":"x"}`, &payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation error")
}

func TestCreateTimeOffValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"single day", `{"dates":["2026-03-03"],"type":"day_off"}`, true},
		{"flight", `{"dates":["2026-03-03"],"type":"flight","flight_number":"DY123"}`, true},
		{"no dates", `{"dates":[],"type":"day_off"}`, false},
		{"empty date", `{"dates":[""],"type":"day_off"}`, false},
		{"unknown type", `{"dates":["2026-03-03"],"type":"holiday"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload CreateTimeOff
			err := decodeString(t, tt.body, &payload)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestProcessReplyIndividualValidation(t *testing.T) {
	var payload ProcessReplyIndividual
	err := decodeString(t, `{"decisions":[{"request_id":"r1","status":"approved"},{"request_id":"r2","status":"maybe"}]}`, &payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation error")

	payload = ProcessReplyIndividual{}
	err = decodeString(t, `{"decisions":[{"request_id":"r1","status":"approved"},{"request_id":"r2","status":"denied"}]}`, &payload)
	require.NoError(t, err)
	assert.Len(t, payload.Decisions, 2)
}

func TestParseDates(t *testing.T) {
	dates, err := ParseDates([]string{"2026-03-03", " 2026-03-04 "})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	}, dates)

	_, err = ParseDates([]string{"03/03/2026"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected YYYY-MM-DD")
}

func TestDateParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/requests?from=2026-03-01&to=bad", nil)

	from, err := DateParam(r, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)

	_, err = DateParam(r, "to")
	assert.Error(t, err)

	missing, err := DateParam(r, "until")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())
}

func TestBoolParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/replies?unprocessed=true&all=0", nil)
	assert.True(t, BoolParam(r, "unprocessed"))
	assert.False(t, BoolParam(r, "all"))
	assert.False(t, BoolParam(r, "missing"))
}
