package main

import (
	"math"

	"github.com/notnil/chess"
)

// moveChooser is the source of randomness for the root fallback.
type moveChooser interface {
	Intn(n int) int
}

// SearchEngine is a depth-limited alpha-beta search over the legal moves of
// a position. Evaluation happens only at leaves; there is no transposition
// table and no move ordering, so pruning never changes the result.
type SearchEngine struct {
	model *Model
}

func NewSearchEngine(model *Model) *SearchEngine {
	return &SearchEngine{model: model}
}

func (s *SearchEngine) evaluate(pos *chess.Position) float64 {
	return s.model.Evaluate(EncodePosition(pos))
}

// AlphaBeta returns the best score achievable by the side to move within
// depth plies, from White's perspective. Child positions come from
// pos.Update, which copies, so sibling branches never share mutations.
func (s *SearchEngine) AlphaBeta(pos *chess.Position, depth int, alpha, beta float64) float64 {
	if depth <= 0 || pos.Status() != chess.NoMethod {
		return s.evaluate(pos)
	}

	if pos.Turn() == chess.White {
		maxEval := math.Inf(-1)
		for _, move := range pos.ValidMoves() {
			eval := s.AlphaBeta(pos.Update(move), depth-1, alpha, beta)
			maxEval = math.Max(maxEval, eval)
			alpha = math.Max(alpha, eval)
			if beta <= alpha {
				break
			}
		}
		return maxEval
	}

	minEval := math.Inf(1)
	for _, move := range pos.ValidMoves() {
		eval := s.AlphaBeta(pos.Update(move), depth-1, alpha, beta)
		minEval = math.Min(minEval, eval)
		beta = math.Min(beta, eval)
		if beta <= alpha {
			break
		}
	}
	return minEval
}

// BestMove searches every root move with a full window and keeps the first
// strict improvement, so earlier moves win ties. Returns nil on terminal
// positions. If no move was kept despite legal moves existing, it falls
// back to a uniformly random legal move.
func (s *SearchEngine) BestMove(pos *chess.Position, depth int, rng moveChooser) *chess.Move {
	legalMoves := pos.ValidMoves()
	if len(legalMoves) == 0 {
		return nil
	}

	var bestMove *chess.Move
	bestVal := math.Inf(-1)
	if pos.Turn() == chess.Black {
		bestVal = math.Inf(1)
	}

	for _, move := range legalMoves {
		val := s.AlphaBeta(pos.Update(move), depth-1, math.Inf(-1), math.Inf(1))
		if pos.Turn() == chess.White {
			if val > bestVal {
				bestVal = val
				bestMove = move
			}
		} else {
			if val < bestVal {
				bestVal = val
				bestMove = move
			}
		}
	}

	if bestMove == nil {
		return legalMoves[rng.Intn(len(legalMoves))]
	}
	return bestMove
}
