package main

import "github.com/notnil/chess"

const (
	squareCount = 64
	pieceSlots  = 12
	featureSize = squareCount * pieceSlots

	blackSlotOffset = 6
)

var pieceSlot = map[chess.PieceType]int{
	chess.Pawn:   0,
	chess.Knight: 1,
	chess.Bishop: 2,
	chess.Rook:   3,
	chess.Queen:  4,
	chess.King:   5,
}

// EncodePosition maps a position to a 768-entry one-hot feature vector.
// Each occupied square sets exactly one entry at
// square*12 + pieceSlot + (6 for black pieces).
func EncodePosition(pos *chess.Position) []float64 {
	features := make([]float64, featureSize)
	for square, piece := range pos.Board().SquareMap() {
		offset := 0
		if piece.Color() == chess.Black {
			offset = blackSlotOffset
		}
		features[int(square)*pieceSlots+pieceSlot[piece.Type()]+offset] = 1
	}
	return features
}
