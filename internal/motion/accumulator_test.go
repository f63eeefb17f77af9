package motion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeClampedSplitsLargeDelta(t *testing.T) {
	var acc Accumulator
	acc.Add(AxisX, 100000)

	var got []int64
	for {
		v, more := acc.Take(AxisX, WireLimit)
		got = append(got, v)
		if !more {
			break
		}
	}

	assert.Equal(t, []int64{32767, 32767, 32767, 2699}, got)
	assert.Zero(t, acc.Pending(AxisX))
	assert.True(t, acc.Empty())
}

func TestTakeClampedNegative(t *testing.T) {
	var acc Accumulator
	acc.Add(AxisY, -300)

	v, more := acc.Take(AxisY, HIDLimit)
	assert.Equal(t, int64(-127), v)
	assert.True(t, more)
	assert.Equal(t, int64(-173), acc.Pending(AxisY))

	v, _ = acc.Take(AxisY, HIDLimit)
	assert.Equal(t, int64(-127), v)
	v, more = acc.Take(AxisY, HIDLimit)
	assert.Equal(t, int64(-46), v)
	assert.False(t, more)
}

func TestTakeClampedAsymmetricRange(t *testing.T) {
	var acc Accumulator
	acc.Add(AxisWheel, -200)

	v, more := acc.TakeClamped(AxisWheel, -128, 127)
	assert.Equal(t, int64(-128), v)
	assert.True(t, more)
	assert.Equal(t, int64(-72), acc.Pending(AxisWheel))
}

func TestMotionConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, limit := range []int64{1, 7, HIDLimit, WireLimit} {
		var acc Accumulator
		var added, emitted int64

		for i := 0; i < 500; i++ {
			d := rng.Int63n(4*limit+1) - 2*limit
			acc.Add(AxisX, d)
			added += d

			// consumer runs less often than the producer
			if i%3 == 0 {
				v, _ := acc.Take(AxisX, limit)
				require.LessOrEqual(t, v, limit)
				require.GreaterOrEqual(t, v, -limit)
				emitted += v
			}
		}
		for acc.Pending(AxisX) != 0 {
			v, _ := acc.Take(AxisX, limit)
			require.LessOrEqual(t, v, limit)
			require.GreaterOrEqual(t, v, -limit)
			emitted += v
		}

		assert.Equal(t, added, emitted, "limit %d", limit)
	}
}

func TestAxesAreIndependent(t *testing.T) {
	var acc Accumulator
	acc.Add(AxisX, 3)
	acc.Add(AxisHWheel, -1)

	assert.True(t, acc.HasMotion())
	assert.True(t, acc.HasWheel())
	assert.Zero(t, acc.Pending(AxisY))

	acc.Reset()
	assert.True(t, acc.Empty())
}

func TestUnknownAxisIgnored(t *testing.T) {
	var acc Accumulator
	acc.Add(Axis(42), 10)
	v, more := acc.Take(Axis(42), 5)
	assert.Zero(t, v)
	assert.False(t, more)
	assert.True(t, acc.Empty())
}
