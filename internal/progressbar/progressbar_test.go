package progressbar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementClampsAtMax(t *testing.T) {
	var buf bytes.Buffer
	b := New(10, 3, "self-play", &buf)

	for i := 0; i < 10; i++ {
		b.Increment()
	}

	assert.True(t, b.Done())
	assert.Equal(t, 3.0, b.currentProgress)
}

func TestDisplayWritesLabelAndPercentage(t *testing.T) {
	var buf bytes.Buffer
	b := New(10, 4, "training", &buf)
	b.Increment()
	b.Increment()
	b.Display()

	out := buf.String()
	assert.Contains(t, out, "training")
	assert.Contains(t, out, "50.00%")
}

func TestCloseReachesFullPercentage(t *testing.T) {
	var buf bytes.Buffer
	b := New(10, 4, "training", &buf)
	b.Increment()
	b.Close()

	assert.True(t, b.Done())
	assert.Contains(t, buf.String(), "100.00%")
}
