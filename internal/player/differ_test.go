package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func playingAttributes() Attributes {
	attrs := DefaultAttributes()
	attrs[AttrState] = StatePlaying
	attrs[AttrMediaType] = MediaTypeVideo
	attrs[AttrVolume] = 10
	return attrs
}

func TestChangedAttributesWithoutPrevious(t *testing.T) {
	next := playingAttributes()
	require.Equal(t, next, ChangedAttributes(nil, next))
}

func TestChangedAttributesStateChangeSendsEverything(t *testing.T) {
	previous := playingAttributes()
	next := playingAttributes()
	next[AttrState] = StatePaused

	require.Equal(t, next, ChangedAttributes(previous, next))
}

func TestChangedAttributesOnlyDifferences(t *testing.T) {
	previous := playingAttributes()
	next := playingAttributes()
	next[AttrVolume] = 12
	next[AttrMediaPosition] = 5

	require.Equal(t, Attributes{AttrVolume: 12, AttrMediaPosition: 5}, ChangedAttributes(previous, next))
}

func TestChangedAttributesIdentical(t *testing.T) {
	require.Empty(t, ChangedAttributes(playingAttributes(), playingAttributes()))
}

func TestChangedAttributesKeyUnion(t *testing.T) {
	previous := playingAttributes()
	next := playingAttributes()
	delete(next, AttrMediaTitle)
	previous[AttrVolume] = 3
	delete(previous, AttrMuted)

	changed := ChangedAttributes(previous, next)
	require.Equal(t, Attributes{AttrMediaTitle: nil, AttrVolume: 10, AttrMuted: false}, changed)
}

func TestChangedAttributesDoesNotAliasNext(t *testing.T) {
	next := playingAttributes()
	changed := ChangedAttributes(nil, next)
	changed[AttrVolume] = 99
	require.Equal(t, 10, next[AttrVolume])
}

func TestRetryDelay(t *testing.T) {
	timing := DefaultTiming()

	for attempt, want := range map[int]time.Duration{
		1:  2 * time.Second,
		2:  4 * time.Second,
		3:  6 * time.Second,
		4:  8 * time.Second,
		15: 30 * time.Second,
		16: 30 * time.Second,
		99: 30 * time.Second,
	} {
		require.Equal(t, want, timing.RetryDelay(attempt, 0), "attempt %d", attempt)
	}

	require.Equal(t, 1950*time.Millisecond, timing.RetryDelay(1, 50*time.Millisecond))
	require.Equal(t, 100*time.Millisecond, timing.RetryDelay(1, 5*time.Second))
}

func TestRetryDelayMonotonic(t *testing.T) {
	timing := Timing{BackoffUnit: 3 * time.Second, BackoffMax: 20 * time.Second, MinDelay: 100 * time.Millisecond}

	last := time.Duration(0)
	for attempt := 1; attempt < 50; attempt++ {
		delay := timing.RetryDelay(attempt, 0)
		require.GreaterOrEqual(t, delay, last)
		require.LessOrEqual(t, delay, timing.BackoffMax)
		last = delay
	}
	require.Equal(t, timing.BackoffMax, last)
}
