package rtkerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesSentinelByKind(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(Transient, "ntrip.Client.Connect", cause)

	assert.True(t, errors.Is(err, ErrTransient))
	assert.False(t, errors.Is(err, ErrFatal))
	assert.True(t, errors.Is(err, cause))
}

func TestKindOfUnwrapsThroughFmtErrorf(t *testing.T) {
	wrapped := New(Validation, "ntrip.Config.Validate", errors.New("mountpoint is required"))

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, Validation, kind)

	_, ok = KindOf(errors.New("unrelated"))
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "mixed-content", MixedContent.String())
}
