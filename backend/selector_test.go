package main

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

const startingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newTestSelector(seed uint64) *MoveSelector {
	return NewMoveSelector(NewSearchEngine(NewModel(seed)), seed)
}

func TestTierForRatingThresholds(t *testing.T) {
	require.Equal(t, strengthTier{RandomProb: 0.5, Depth: 1}, tierForRating(0))
	require.Equal(t, strengthTier{RandomProb: 0.5, Depth: 1}, tierForRating(999))
	require.Equal(t, strengthTier{RandomProb: 0.2, Depth: 2}, tierForRating(1000))
	require.Equal(t, strengthTier{RandomProb: 0.2, Depth: 2}, tierForRating(1799))
	require.Equal(t, strengthTier{RandomProb: 0, Depth: 3}, tierForRating(1800))
	require.Equal(t, strengthTier{RandomProb: 0, Depth: 3}, tierForRating(2500))
}

func TestSelectMoveAlwaysLegal(t *testing.T) {
	selector := newTestSelector(9)
	fens := []string{
		startingFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 4 3",
		"8/8/4k3/8/4q3/8/8/4K3 b - - 0 1",
	}
	for _, fen := range fens {
		pos := positionFromFEN(t, fen)
		legal := map[string]bool{}
		for _, move := range pos.ValidMoves() {
			legal[move.String()] = true
		}
		for _, rating := range []int{500, 999, 1000, 1500, 1799, 1800} {
			move, err := selector.SelectMove(fen, rating)
			require.NoError(t, err, "fen %s rating %d", fen, rating)
			require.True(t, legal[move], "fen %s rating %d returned illegal move %q", fen, rating, move)
		}
	}
}

func TestSelectMoveTerminalPositionReturnsEmpty(t *testing.T) {
	selector := newTestSelector(9)
	move, err := selector.SelectMove("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", 1500)
	require.NoError(t, err)
	require.Empty(t, move)
}

func TestSelectMoveInvalidFEN(t *testing.T) {
	selector := newTestSelector(9)
	_, err := selector.SelectMove("not a position", 1500)
	require.ErrorIs(t, err, ErrInvalidPosition)
}

func TestSelectMoveLowTierExhibitsRandomness(t *testing.T) {
	selector := newTestSelector(123)
	seen := map[string]bool{}
	for i := 0; i < 40; i++ {
		move, err := selector.SelectMove(startingFEN, 999)
		require.NoError(t, err)
		seen[move] = true
	}
	// Half of the picks are uniform over 20 legal moves, so a single
	// repeated move over 40 trials is practically impossible.
	require.Greater(t, len(seen), 1, "low tier never took the random branch")
}

func TestSelectMoveHighTierDeterministic(t *testing.T) {
	selector := newTestSelector(123)
	pos := "7k/8/8/8/8/8/R7/K7 w - - 0 1"
	first, err := selector.SelectMove(pos, 1800)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		move, err := selector.SelectMove(pos, 1800)
		require.NoError(t, err)
		require.Equal(t, first, move)
	}
}

func TestSelectMoveMidTierStillReturnsLegalUnderRepeats(t *testing.T) {
	selector := newTestSelector(7)
	pos := positionFromFEN(t, startingFEN)
	legal := map[string]bool{}
	for _, move := range pos.ValidMoves() {
		legal[move.String()] = true
	}
	for i := 0; i < 20; i++ {
		move, err := selector.SelectMove(startingFEN, 1000)
		require.NoError(t, err)
		require.True(t, legal[move])
	}
}

func TestSelectMoveRoundTripsThroughUCI(t *testing.T) {
	selector := newTestSelector(21)
	move, err := selector.SelectMove(startingFEN, 2000)
	require.NoError(t, err)
	pos := positionFromFEN(t, startingFEN)
	decoded, err := chess.UCINotation{}.Decode(pos, move)
	require.NoError(t, err)
	require.Equal(t, move, decoded.String())
}
