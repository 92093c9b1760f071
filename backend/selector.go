package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/notnil/chess"
	"golang.org/x/exp/rand"
)

var ErrInvalidPosition = errors.New("invalid position")

// strengthTier maps a requested rating to a playing-strength behavior.
type strengthTier struct {
	RandomProb float64
	Depth      int
}

func tierForRating(rating int) strengthTier {
	switch {
	case rating < 1000:
		return strengthTier{RandomProb: 0.5, Depth: 1}
	case rating < 1800:
		return strengthTier{RandomProb: 0.2, Depth: 2}
	default:
		return strengthTier{RandomProb: 0, Depth: 3}
	}
}

// lockedRand guards a rand.Rand shared by request handlers and the trainer.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(seed uint64) *lockedRand {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// MoveSelector picks one legal move for a position at a requested rating,
// either uniformly at random (weaker tiers) or via the search engine.
type MoveSelector struct {
	search *SearchEngine
	rng    *lockedRand
}

func NewMoveSelector(search *SearchEngine, seed uint64) *MoveSelector {
	return &MoveSelector{
		search: search,
		rng:    newLockedRand(seed),
	}
}

// SelectMove returns the chosen move in UCI text form, or an empty string
// when the position has no legal moves.
func (s *MoveSelector) SelectMove(fen string, rating int) (string, error) {
	fenOption, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	pos := chess.NewGame(fenOption).Position()

	legalMoves := pos.ValidMoves()
	if len(legalMoves) == 0 {
		return "", nil
	}

	tier := tierForRating(rating)
	if tier.RandomProb > 0 && s.rng.Float64() < tier.RandomProb {
		return legalMoves[s.rng.Intn(len(legalMoves))].String(), nil
	}

	move := s.search.BestMove(pos, tier.Depth, s.rng)
	return move.String(), nil
}
