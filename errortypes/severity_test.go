package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityFilters(t *testing.T) {
	fatal := &BadInput{Message: "fatal"}
	plain := errors.New("plain")
	warning := &Warning{Message: "warn", WarningCode: MultiBidWarningCode}
	debugWarning := &DebugWarning{Message: "debug"}

	errs := []error{fatal, warning, plain, debugWarning}

	assert.Equal(t, []error{fatal, plain}, FatalOnly(errs))
	assert.Equal(t, []error{warning, debugWarning}, WarningOnly(errs))
	assert.True(t, ContainsFatalError(errs))
	assert.False(t, ContainsFatalError([]error{warning}))
	assert.False(t, ContainsFatalError(nil))
}

func TestReadCode(t *testing.T) {
	tests := []struct {
		description string
		err         error
		expected    int
	}{
		{description: "timeout", err: &Timeout{}, expected: TimeoutErrorCode},
		{description: "invalid-bid", err: &InvalidBid{}, expected: InvalidBidErrorCode},
		{description: "warning", err: &Warning{WarningCode: FloorBidRejectionWarningCode}, expected: FloorBidRejectionWarningCode},
		{description: "uncoded", err: errors.New("any"), expected: UnknownErrorCode},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, ReadCode(test.err), test.description)
	}
}

func TestAggregateErrors(t *testing.T) {
	assert.Equal(t, "", NewAggregateErrors("none", nil).Error())
	assert.Equal(t, "two (2 errors):\n  1: a\n  2: b\n", NewAggregateErrors("two", []error{errors.New("a"), errors.New("b")}).Error())
}
