package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog/log"
)

// SelfTrainer plays the engine against itself in the background and feeds
// every finished game back into the model as one scalar reward per game.
type SelfTrainer struct {
	selector *MoveSelector
	model    *Model
	rng      *lockedRand

	modelPath   string
	rating      int
	exploreProb float64
	cooldown    time.Duration

	publish func(GameSummary)

	statusMu  sync.RWMutex
	status    TrainerStatus
	jobMu     sync.Mutex
	jobCancel context.CancelFunc
	jobDone   chan struct{}
}

type TrainerStatus struct {
	Running     bool    `json:"running"`
	GamesPlayed int     `json:"games_played"`
	LastResult  string  `json:"last_result"`
	LastReward  float64 `json:"last_reward"`
	LastMoves   int     `json:"last_moves"`
	LastLoss    float64 `json:"last_loss"`
	StartedAt   string  `json:"started_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// GameSummary describes one finished self-play game.
type GameSummary struct {
	Result  string  `json:"result"`
	Reward  float64 `json:"reward"`
	Moves   int     `json:"moves"`
	AvgLoss float64 `json:"avg_loss"`
}

// tracedPosition is one (encoded position, side to move) pair recorded
// before a self-play move was applied.
type tracedPosition struct {
	features []float64
	turn     chess.Color
}

func NewSelfTrainer(selector *MoveSelector, model *Model, cfg Config) *SelfTrainer {
	return &SelfTrainer{
		selector:    selector,
		model:       model,
		rng:         newLockedRand(cfg.Seed + 1),
		modelPath:   cfg.ModelPath,
		rating:      cfg.TrainerRating,
		exploreProb: cfg.TrainerExploreProb,
		cooldown:    time.Duration(cfg.TrainerCooldownMs) * time.Millisecond,
		status: TrainerStatus{
			StartedAt: time.Now().UTC().Format(time.RFC3339),
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// SetPublisher registers a sink for finished-game summaries.
func (t *SelfTrainer) SetPublisher(publish func(GameSummary)) {
	t.publish = publish
}

func (t *SelfTrainer) Status() TrainerStatus {
	t.statusMu.RLock()
	defer t.statusMu.RUnlock()
	return t.status
}

func (t *SelfTrainer) updateStatus(mutator func(*TrainerStatus)) {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	mutator(&t.status)
	t.status.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Start launches the self-play loop. Returns an error if already running.
func (t *SelfTrainer) Start() error {
	t.jobMu.Lock()
	defer t.jobMu.Unlock()
	if t.jobCancel != nil {
		return fmt.Errorf("self-training already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.jobCancel = cancel
	t.jobDone = done
	t.updateStatus(func(s *TrainerStatus) {
		s.Running = true
		s.StartedAt = time.Now().UTC().Format(time.RFC3339)
	})
	log.Info().Msg("self-training started")
	go func() {
		defer close(done)
		t.loop(ctx)
	}()
	return nil
}

// Stop cancels the loop and waits for the worker goroutine to exit. The
// stop signal is honored between games, not mid-game.
func (t *SelfTrainer) Stop() {
	t.jobMu.Lock()
	cancel := t.jobCancel
	done := t.jobDone
	t.jobCancel = nil
	t.jobDone = nil
	t.jobMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	t.updateStatus(func(s *TrainerStatus) {
		s.Running = false
	})
	log.Info().Msg("self-training stopped")
}

func (t *SelfTrainer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		summary, err := t.playGame()
		if err != nil {
			log.Error().Err(err).Msg("self-play iteration failed")
		} else {
			t.updateStatus(func(s *TrainerStatus) {
				s.GamesPlayed++
				s.LastResult = summary.Result
				s.LastReward = summary.Reward
				s.LastMoves = summary.Moves
				s.LastLoss = summary.AvgLoss
			})
			log.Info().
				Str("result", summary.Result).
				Float64("reward", summary.Reward).
				Int("moves", summary.Moves).
				Msg("self-play game finished")
			if t.publish != nil {
				t.publish(summary)
			}
		}

		if !sleepWithContext(ctx, t.cooldown) {
			return
		}
	}
}

// playGame runs one full self-play game and trains on its trace. A panic
// anywhere in the game is converted to an error so the loop survives it.
func (t *SelfTrainer) playGame() (summary GameSummary, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("self-play panic: %v", recovered)
		}
	}()

	game := chess.NewGame()
	trace := make([]tracedPosition, 0, 128)

	for game.Outcome() == chess.NoOutcome {
		pos := game.Position()

		var move *chess.Move
		if t.rng.Float64() < t.exploreProb {
			legalMoves := game.ValidMoves()
			move = legalMoves[t.rng.Intn(len(legalMoves))]
		} else {
			moveText, selectErr := t.selector.SelectMove(pos.String(), t.rating)
			if selectErr != nil {
				return summary, fmt.Errorf("select move: %w", selectErr)
			}
			move, err = chess.UCINotation{}.Decode(pos, moveText)
			if err != nil {
				return summary, fmt.Errorf("decode move %q: %w", moveText, err)
			}
		}

		trace = append(trace, tracedPosition{
			features: EncodePosition(pos),
			turn:     pos.Turn(),
		})
		if err := game.Move(move); err != nil {
			return summary, fmt.Errorf("apply move: %w", err)
		}
	}

	reward := rewardForOutcome(game.Outcome())

	// Every recorded position trains toward the game outcome, regardless
	// of which side was to move.
	totalLoss := 0.0
	for _, entry := range trace {
		totalLoss += t.model.TrainStep(entry.features, reward)
	}

	if saveErr := SaveModel(t.modelPath, t.model); saveErr != nil {
		log.Warn().Err(saveErr).Msg("model save failed; continuing")
	}

	summary = GameSummary{
		Result: string(game.Outcome()),
		Reward: reward,
		Moves:  len(trace),
	}
	if len(trace) > 0 {
		summary.AvgLoss = totalLoss / float64(len(trace))
	}
	return summary, nil
}

// rewardForOutcome maps a game result to the training target, always from
// White's perspective.
func rewardForOutcome(outcome chess.Outcome) float64 {
	switch outcome {
	case chess.WhiteWon:
		return 1.0
	case chess.BlackWon:
		return -1.0
	default:
		return 0.0
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
