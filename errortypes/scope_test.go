package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadScope(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Scope
	}{
		{
			name: "scope-debug",
			err:  &DebugWarning{Message: "scope is debug"},
			want: ScopeDebug,
		},
		{
			name: "scope-any",
			err:  &Warning{Message: "scope is any"},
			want: ScopeAny,
		},
		{
			name: "default-error",
			err:  errors.New("default error"),
			want: ScopeAny,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadScope(tt.err))
		})
	}
}
