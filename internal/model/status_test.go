package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstants(t *testing.T) {
	assert.Equal(t, Status("pending"), StatusPending)
	assert.Equal(t, Status("approved"), StatusApproved)
	assert.Equal(t, Status("denied"), StatusDenied)
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusApproved.Valid())
	assert.True(t, StatusDenied.Valid())
	assert.False(t, Status("rejected").Valid())
	assert.False(t, Status("").Valid())
}

func TestRequestTypeValid(t *testing.T) {
	for _, rt := range []RequestType{TypeDayOff, TypeAfternoonOff, TypeMorningOff, TypeFlight} {
		assert.True(t, rt.Valid(), rt)
	}
	assert.False(t, RequestType("vacation").Valid())
}

func TestRequestTypeLabel(t *testing.T) {
	assert.Equal(t, "Day off", TypeDayOff.Label())
	assert.Equal(t, "Flight", TypeFlight.Label())
	assert.Equal(t, "other", RequestType("other").Label())
}

func TestEmailModeValid(t *testing.T) {
	assert.True(t, EmailModeManual.Valid())
	assert.True(t, EmailModeAutomatic.Valid())
	assert.False(t, EmailMode("smtp").Valid())
}
