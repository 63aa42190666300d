package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSentinel(t *testing.T) {
	for _, label := range []string{"", "  ", "-1", "No Topic", "no_topic", "Outlier", "outliers"} {
		assert.True(t, IsSentinel(label), label)
	}
	for _, label := range []string{"travel", "0", "topics"} {
		assert.False(t, IsSentinel(label), label)
	}
}
