package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDisabledIsSilent(t *testing.T) {
	n := New(false)
	assert.IsType(t, SilentNotifier{}, n)
	assert.NoError(t, n.Notify("title", "message"))
}
