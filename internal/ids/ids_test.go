package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeIDIsNonZero(t *testing.T) {
	assert.NotZero(t, NewNodeID())
}

func TestNodeIDMintingMixesAllInputs(t *testing.T) {
	now := time.Now()
	seed := uuid.New()

	base := newNodeIDFrom(now, 100, seed)
	assert.NotEqual(t, base, newNodeIDFrom(now.Add(time.Nanosecond), 100, seed))
	assert.NotEqual(t, base, newNodeIDFrom(now, 101, seed))
	assert.NotEqual(t, base, newNodeIDFrom(now, 100, uuid.New()))
}

func TestNodeIDFromHex(t *testing.T) {
	id, err := NodeIDFromHex("deadbeef")
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, id)

	id, err = NodeIDFromHex("0xFF")
	require.NoError(t, err)
	assert.EqualValues(t, 0xff, id)

	_, err = NodeIDFromHex("not-hex")
	assert.Error(t, err)

	_, err = NodeIDFromHex("")
	assert.Error(t, err)
}

func TestCounterStartsAtOne(t *testing.T) {
	var c Counter
	assert.EqualValues(t, 1, c.Next())
	assert.EqualValues(t, 2, c.Next())
}
