// Package auditor drives repeated heartbeat rounds against a stored
// beat: issue a challenge, obtain a proof from the prover, verify it, and
// persist the advanced state. The prover is abstracted as a callback so
// the same loop serves a local file check or a remote transport.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
	"github.com/Layr-Labs/heartbeat-go/pkg/store"
)

// ProveFunc obtains a proof for a challenge. Implementations typically
// wrap a local file with the public scheme copy, or a network round-trip
// to the prover.
type ProveFunc[T heartbeat.Tag, C heartbeat.Challenge, P heartbeat.Proof] func(chal C, tag T) (P, error)

// Config controls an audit loop.
type Config struct {
	// BeatID names the stored beat to audit.
	BeatID string

	// Interval is the pacing between rounds.
	Interval time.Duration

	// Rounds bounds the number of rounds; zero means until the context
	// is canceled or the challenge budget runs out.
	Rounds int
}

// Auditor runs the challenge/prove/verify loop for one beat.
type Auditor[T heartbeat.Tag, S heartbeat.State, C heartbeat.Challenge, P heartbeat.Proof] struct {
	scheme  heartbeat.Scheme[T, S, C, P]
	beats   store.IBeatStore
	prover  ProveFunc[T, C, P]
	limiter *rate.Limiter
	logger  *zap.Logger
	cfg     Config
}

// New creates an auditor over a scheme, a beat store and a prover.
func New[T heartbeat.Tag, S heartbeat.State, C heartbeat.Challenge, P heartbeat.Proof](
	scheme heartbeat.Scheme[T, S, C, P],
	beats store.IBeatStore,
	prover ProveFunc[T, C, P],
	cfg Config,
	logger *zap.Logger,
) (*Auditor[T, S, C, P], error) {
	if cfg.BeatID == "" {
		return nil, fmt.Errorf("auditor requires a beat ID")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("auditor requires a positive interval")
	}
	return &Auditor[T, S, C, P]{
		scheme:  scheme,
		beats:   beats,
		prover:  prover,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Run executes audit rounds until the round budget, the challenge budget
// or the context ends. A verification mismatch is reported through the
// returned count and the log, not as an error; the loop keeps going so an
// operator sees repeated failures rather than a single one.
func (a *Auditor[T, S, C, P]) Run(ctx context.Context) (passed, failed int, err error) {
	sugar := a.logger.Sugar()

	for round := 0; a.cfg.Rounds == 0 || round < a.cfg.Rounds; round++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return passed, failed, nil
		}

		ok, err := a.runRound()
		if errors.Is(err, heartbeat.ErrOutOfChallenges) {
			sugar.Infow("Challenge budget exhausted, stopping audit",
				"beat_id", a.cfg.BeatID, "rounds", round)
			return passed, failed, nil
		}
		if err != nil {
			return passed, failed, err
		}

		if ok {
			passed++
			sugar.Infow("Audit round passed", "beat_id", a.cfg.BeatID, "round", round)
		} else {
			failed++
			sugar.Warnw("Audit round FAILED - prover may not hold the file",
				"beat_id", a.cfg.BeatID, "round", round)
		}
	}

	return passed, failed, nil
}

// runRound executes one challenge/prove/verify round.
func (a *Auditor[T, S, C, P]) runRound() (bool, error) {
	record, err := a.beats.LoadBeat(a.cfg.BeatID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, fmt.Errorf("beat %s not found", a.cfg.BeatID)
	}

	tag := a.scheme.NewTag()
	if err := tag.UnmarshalJSON(record.Tag); err != nil {
		return false, err
	}
	state := a.scheme.NewState()
	if err := state.UnmarshalJSON(record.State); err != nil {
		return false, err
	}

	chal, err := a.scheme.GenChallenge(state)
	if err != nil {
		return false, err
	}

	// The advanced state must be durable before the challenge is used;
	// losing it would desynchronize verifier and prover.
	advanced, err := state.MarshalJSON()
	if err != nil {
		return false, err
	}
	if err := a.beats.UpdateState(a.cfg.BeatID, advanced); err != nil {
		return false, err
	}

	proof, err := a.prover(chal, tag)
	if err != nil {
		return false, err
	}

	return a.scheme.Verify(proof, chal, state)
}

// LocalProver builds a ProveFunc over a local file stream using a scheme
// copy (typically the public one).
func LocalProver[T heartbeat.Tag, S heartbeat.State, C heartbeat.Challenge, P heartbeat.Proof](
	scheme heartbeat.Scheme[T, S, C, P],
	file io.ReadSeeker,
) ProveFunc[T, C, P] {
	return func(chal C, tag T) (P, error) {
		return scheme.Prove(file, chal, tag)
	}
}
