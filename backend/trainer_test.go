package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

func playScriptedGame(t *testing.T, uciMoves []string) *chess.Game {
	t.Helper()
	game := chess.NewGame()
	for _, moveText := range uciMoves {
		move, err := chess.UCINotation{}.Decode(game.Position(), moveText)
		require.NoError(t, err, "decode %s", moveText)
		require.NoError(t, game.Move(move), "apply %s", moveText)
	}
	return game
}

func newTestTrainer(t *testing.T, cfg Config) *SelfTrainer {
	t.Helper()
	model := NewModel(cfg.Seed)
	selector := NewMoveSelector(NewSearchEngine(model), cfg.Seed)
	return NewSelfTrainer(selector, model, cfg)
}

func TestRewardForOutcome(t *testing.T) {
	require.Equal(t, 1.0, rewardForOutcome(chess.WhiteWon))
	require.Equal(t, -1.0, rewardForOutcome(chess.BlackWon))
	require.Equal(t, 0.0, rewardForOutcome(chess.Draw))
	require.Equal(t, 0.0, rewardForOutcome(chess.NoOutcome))
}

func TestScriptedCheckmateYieldsWhiteReward(t *testing.T) {
	// Scholar's mate.
	game := playScriptedGame(t, []string{"e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7"})
	require.Equal(t, chess.WhiteWon, game.Outcome())
	require.Equal(t, 1.0, rewardForOutcome(game.Outcome()))
}

func TestScriptedCheckmateYieldsBlackReward(t *testing.T) {
	// Fool's mate.
	game := playScriptedGame(t, []string{"f2f3", "e7e5", "g2g4", "d8h4"})
	require.Equal(t, chess.BlackWon, game.Outcome())
	require.Equal(t, -1.0, rewardForOutcome(game.Outcome()))
}

func TestTrainingAppliesSameRewardToEveryTracedPosition(t *testing.T) {
	// Both sides' positions train toward the single game outcome.
	game := playScriptedGame(t, []string{"e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7"})
	reward := rewardForOutcome(game.Outcome())

	model := NewModel(3)
	trace := []tracedPosition{
		{features: EncodePosition(chess.NewGame().Position()), turn: chess.White},
		{features: EncodePosition(game.Position()), turn: chess.Black},
	}

	before := make([]float64, len(trace))
	for i, entry := range trace {
		before[i] = model.Evaluate(entry.features)
	}
	for round := 0; round < 100; round++ {
		for _, entry := range trace {
			model.TrainStep(entry.features, reward)
		}
	}
	for i, entry := range trace {
		after := model.Evaluate(entry.features)
		require.Greater(t, after, before[i],
			"position %d (%v to move) did not move toward reward %v", i, entry.turn, reward)
	}
}

func TestPlayGameProducesSummaryAndPersistsModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 17
	cfg.TrainerExploreProb = 1.0 // random play keeps the test independent of search depth
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.nn")
	trainer := newTestTrainer(t, cfg)

	summary, err := trainer.playGame()
	require.NoError(t, err)
	require.Greater(t, summary.Moves, 0)
	require.NotEmpty(t, summary.Result)
	require.Contains(t, []float64{1.0, -1.0, 0.0}, summary.Reward)

	_, err = os.Stat(cfg.ModelPath)
	require.NoError(t, err, "expected model artifact after the game")
}

func TestTrainerStartStopIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 23
	cfg.TrainerExploreProb = 1.0
	cfg.TrainerCooldownMs = 60000 // Stop lands in the cooldown wait
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.nn")
	trainer := newTestTrainer(t, cfg)

	require.NoError(t, trainer.Start())
	require.Error(t, trainer.Start(), "second start must be rejected")
	require.True(t, trainer.Status().Running)

	trainer.Stop()
	require.False(t, trainer.Status().Running)

	// Stop on a stopped trainer is a no-op.
	trainer.Stop()
}

func TestTrainerStatusReflectsFinishedGames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 29
	cfg.TrainerExploreProb = 1.0
	cfg.TrainerCooldownMs = 1
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.nn")
	trainer := newTestTrainer(t, cfg)

	published := make(chan GameSummary, 8)
	trainer.SetPublisher(func(summary GameSummary) {
		select {
		case published <- summary:
		default:
		}
	})

	require.NoError(t, trainer.Start())
	select {
	case summary := <-published:
		require.Greater(t, summary.Moves, 0)
	case <-time.After(60 * time.Second):
		t.Fatal("no game finished in time")
	}
	trainer.Stop()

	status := trainer.Status()
	require.GreaterOrEqual(t, status.GamesPlayed, 1)
	require.NotEmpty(t, status.LastResult)
}
