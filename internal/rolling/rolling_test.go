package rolling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	r.Read(buf)
	return buf
}

func feed(h Hash, data []byte) uint64 {
	for _, b := range data {
		h.Input(b)
	}
	return h.Sum()
}

func allHashes(t *testing.T, window int) map[string]Hash {
	t.Helper()
	out := make(map[string]Hash)
	for _, algo := range []Algorithm{AlgoBuzHash, AlgoRollSum, AlgoGear} {
		h, err := New(algo, window)
		require.NoError(t, err)
		out[algo.String()] = h
	}
	return out
}

func TestHash_DependsOnlyOnWindow(t *testing.T) {
	const window = 48
	tail := randomBytes(1, GearWindow)

	for name := range allHashes(t, window) {
		t.Run(name, func(t *testing.T) {
			algo, err := ParseAlgorithm(name)
			require.NoError(t, err)

			h1, _ := New(algo, window)
			h2, _ := New(algo, window)

			a := append(randomBytes(2, 1000), tail...)
			b := append(randomBytes(3, 333), tail...)

			assert.Equal(t, feed(h1, a), feed(h2, b))
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	data := randomBytes(4, 4096)

	for name, h := range allHashes(t, 32) {
		t.Run(name, func(t *testing.T) {
			var first []uint64
			for _, b := range data {
				h.Input(b)
				first = append(first, h.Sum())
			}

			h.Reset()
			for i, b := range data {
				h.Input(b)
				require.Equal(t, first[i], h.Sum(), "position %d", i)
			}
		})
	}
}

func TestHash_LastByteChangesSum(t *testing.T) {
	data := randomBytes(5, 256)

	for _, algo := range []Algorithm{AlgoBuzHash, AlgoRollSum} {
		t.Run(algo.String(), func(t *testing.T) {
			h1, _ := New(algo, 16)
			h2, _ := New(algo, 16)
			other := append([]byte{}, data...)
			other[len(other)-1] ^= 0xff

			assert.NotEqual(t, feed(h1, data), feed(h2, other))
		})
	}
}

func TestHash_ZeroUntilWindowFull(t *testing.T) {
	for _, algo := range []Algorithm{AlgoBuzHash, AlgoRollSum} {
		t.Run(algo.String(), func(t *testing.T) {
			h, err := New(algo, 16)
			require.NoError(t, err)

			data := randomBytes(6, 16)
			assert.Zero(t, feed(h, data[:15]))
			assert.NotZero(t, feed(h, data[15:]))

			h.Reset()
			assert.Zero(t, h.Sum())
		})
	}
}

func TestHash_MatchesFreshWindowAfterRolling(t *testing.T) {
	// Rolling past the first window gives the same value as writing the
	// trailing window into a fresh hash.
	data := randomBytes(7, 300)

	for _, algo := range []Algorithm{AlgoBuzHash, AlgoRollSum} {
		t.Run(algo.String(), func(t *testing.T) {
			rolled, _ := New(algo, 32)
			fresh, _ := New(algo, 32)

			assert.Equal(t, feed(fresh, data[len(data)-32:]), feed(rolled, data))
			assert.Equal(t, 32, rolled.Window())
		})
	}
}

func TestRollSum_ZeroWindow(t *testing.T) {
	// Adler-32 over n zero bytes is a=1, b=n.
	r := NewRollSum(64)
	feed(r, randomBytes(8, 100))
	feed(r, make([]byte, 64))
	assert.Equal(t, uint64(64<<16|1), r.Sum())
}

func TestGear_WindowReported(t *testing.T) {
	h, err := New(AlgoGear, 0)
	require.NoError(t, err)
	assert.Equal(t, GearWindow, h.Window())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(AlgoBuzHash, 0)
	assert.Error(t, err)

	_, err = New(Algorithm(42), 64)
	assert.Error(t, err)

	_, err = ParseAlgorithm("rabin")
	assert.Error(t, err)
}

func TestParseAlgorithm_RoundTrip(t *testing.T) {
	for _, algo := range []Algorithm{AlgoBuzHash, AlgoRollSum, AlgoGear} {
		got, err := ParseAlgorithm(algo.String())
		require.NoError(t, err)
		assert.Equal(t, algo, got)
	}
}
