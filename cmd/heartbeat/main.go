package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/heartbeat-go/pkg/auditor"
	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
	"github.com/Layr-Labs/heartbeat-go/pkg/keystore"
	"github.com/Layr-Labs/heartbeat-go/pkg/logger"
	"github.com/Layr-Labs/heartbeat-go/pkg/merkle"
	"github.com/Layr-Labs/heartbeat-go/pkg/store"
	storeBadger "github.com/Layr-Labs/heartbeat-go/pkg/store/badger"
	storeMemory "github.com/Layr-Labs/heartbeat-go/pkg/store/memory"
	storeRedis "github.com/Layr-Labs/heartbeat-go/pkg/store/redis"
	"github.com/Layr-Labs/heartbeat-go/pkg/swizzle"
)

// Environment variable names for flag fallbacks
const (
	EnvMasterKey     = "HEARTBEAT_MASTER_KEY"
	EnvStoreType     = "HEARTBEAT_STORE_TYPE"
	EnvStoreDataPath = "HEARTBEAT_STORE_DATA_PATH"
	EnvRedisAddress  = "HEARTBEAT_REDIS_ADDRESS"
	EnvRedisPassword = "HEARTBEAT_REDIS_PASSWORD"
	EnvRedisDB       = "HEARTBEAT_REDIS_DB"
	EnvVerbose       = "HEARTBEAT_VERBOSE"
)

func main() {
	storeFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Beat store backend: 'memory' (testing only), 'badger' (local disk), or 'redis' (distributed)",
			Value:   "badger",
			EnvVars: []string{EnvStoreType},
		},
		&cli.StringFlag{
			Name:    "store-data-path",
			Usage:   "Data directory for Badger storage",
			Value:   "./heartbeat-data",
			EnvVars: []string{EnvStoreDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis server address (host:port) for Redis storage",
			Value:   "localhost:6379",
			EnvVars: []string{EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password (optional)",
			EnvVars: []string{EnvRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number (0-15)",
			Value:   0,
			EnvVars: []string{EnvRedisDB},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{EnvVerbose},
		},
	}

	app := &cli.App{
		Name:  "heartbeat",
		Usage: "Proof-of-storage heartbeats over remote files",
		Description: `Encode files into heartbeat tags, issue challenges and verify proofs.

Two schemes are available:
- merkle: spot-check storage with a small tag and a finite challenge budget
- swizzle: full-file audits with an unlimited challenge budget`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "encode",
				Usage: "Encode a file into a heartbeat and store it",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path of the file to encode",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "scheme",
						Usage:   "Heartbeat scheme: 'merkle' or 'swizzle'",
						Value:   store.SchemeMerkle,
					},
					&cli.StringFlag{
						Name:    "master-key",
						Usage:   "Hex-encoded 32-byte master key; the beat key is derived from it (random when omitted)",
						EnvVars: []string{EnvMasterKey},
					},
					&cli.Int64Flag{
						Name:  "n",
						Usage: "Merkle challenge budget",
						Value: heartbeat.DefaultChallengeCount,
					},
					&cli.Int64Flag{
						Name:  "chunk-size",
						Usage: "Merkle chunk size in bytes (0 selects the default)",
					},
					&cli.Float64Flag{
						Name:  "check-fraction",
						Usage: "Merkle chunk size as a fraction of the file size (overrides --chunk-size)",
					},
					&cli.IntFlag{
						Name:  "sectors",
						Usage: "Swizzle sectors per chunk",
						Value: heartbeat.DefaultSectors,
					},
					&cli.IntFlag{
						Name:  "prime-bits",
						Usage: "Swizzle prime bit length",
						Value: heartbeat.DefaultPrimeBits,
					},
					&cli.BoolFlag{
						Name:  "convergent",
						Usage: "Use convergent state encryption (swizzle only)",
					},
				}, storeFlags...),
				Action: runEncode,
			},
			{
				Name:  "challenge",
				Usage: "Issue the next challenge for a stored beat",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Beat ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "File to write the challenge JSON to (stdout when omitted)",
					},
				}, storeFlags...),
				Action: runChallenge,
			},
			{
				Name:  "prove",
				Usage: "Compute a proof for a challenge over a local file",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Beat ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path of the file to prove possession of",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "challenge",
						Usage:    "File holding the challenge JSON",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "File to write the proof JSON to (stdout when omitted)",
					},
				}, storeFlags...),
				Action: runProve,
			},
			{
				Name:  "verify",
				Usage: "Verify a proof against a stored beat",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Beat ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "challenge",
						Usage:    "File holding the challenge JSON",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "proof",
						Usage:    "File holding the proof JSON",
						Required: true,
					},
				}, storeFlags...),
				Action: runVerify,
			},
			{
				Name:  "audit",
				Usage: "Run periodic challenge/prove/verify rounds against a local file",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Beat ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path of the file to audit",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Pacing between audit rounds",
						Value: 10 * time.Second,
					},
					&cli.IntFlag{
						Name:  "rounds",
						Usage: "Number of rounds (0 runs until interrupted or out of challenges)",
					},
				}, storeFlags...),
				Action: runAudit,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// buildLogger creates the zap logger from the verbose flag
func buildLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
}

// buildStore creates the beat store selected by the store flags
func buildStore(c *cli.Context, l *zap.Logger) (store.IBeatStore, error) {
	switch c.String("store") {
	case "badger":
		return storeBadger.NewBadgerStore(c.String("store-data-path"), l)
	case "redis":
		return storeRedis.NewRedisStore(&storeRedis.RedisConfig{
			Address:  c.String("redis-address"),
			Password: c.String("redis-password"),
			DB:       c.Int("redis-db"),
		}, l)
	case "memory":
		return storeMemory.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", c.String("store"))
	}
}

// beatKey derives or draws the scheme key for a new beat
func beatKey(c *cli.Context, beatID string) ([]byte, error) {
	masterHex := c.String("master-key")
	if masterHex == "" {
		return nil, nil // Schemes draw a random key themselves
	}
	master, err := hex.DecodeString(masterHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid master key hex")
	}
	ks, err := keystore.NewKeyStore(master)
	if err != nil {
		return nil, err
	}
	defer ks.Close()
	return ks.DeriveKey(beatID)
}

func runEncode(c *cli.Context) error {
	l, err := buildLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	beats, err := buildStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = beats.Close() }()

	file, err := os.Open(c.String("file"))
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = file.Close() }()

	beatID := uuid.New().String()
	key, err := beatKey(c, beatID)
	if err != nil {
		return err
	}

	record := &store.BeatRecord{
		ID:        beatID,
		CreatedAt: time.Now().Unix(),
	}

	schemeName := c.String("scheme")
	switch schemeName {
	case store.SchemeMerkle:
		var scheme *merkle.Scheme
		chunkSize := c.Int64("chunk-size")
		if f := c.Float64("check-fraction"); f > 0 {
			scheme, err = merkle.NewSchemeWithCheckFraction(key, f)
			chunkSize = 0 // The fraction sizes the chunks
		} else {
			scheme, err = merkle.NewScheme(key)
		}
		if err != nil {
			return err
		}
		defer scheme.Zeroize()

		tag, state, err := scheme.EncodeWith(file, merkle.EncodeParams{
			N:         c.Int64("n"),
			ChunkSize: chunkSize,
		})
		if err != nil {
			return errors.Wrap(err, "encode failed")
		}
		if err := fillRecord(record, store.SchemeMerkle, scheme, tag, state); err != nil {
			return err
		}
	case store.SchemeSwizzle:
		scheme, err := swizzle.NewSchemeWithOptions(key, swizzle.Options{
			Sectors:    c.Int("sectors"),
			PrimeBits:  c.Int("prime-bits"),
			Convergent: c.Bool("convergent"),
		})
		if err != nil {
			return err
		}
		defer scheme.Zeroize()

		tag, state, err := scheme.Encode(file)
		if err != nil {
			return errors.Wrap(err, "encode failed")
		}
		if err := fillRecord(record, store.SchemeSwizzle, scheme, tag, state); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown scheme: %s", schemeName)
	}

	if err := beats.SaveBeat(record); err != nil {
		return errors.Wrap(err, "failed to store beat")
	}

	l.Sugar().Infow("File encoded",
		"beat_id", beatID,
		"scheme", schemeName,
		"file", c.String("file"))
	fmt.Println(beatID)
	return nil
}

// fillRecord serializes scheme, tag and state into a beat record
func fillRecord(record *store.BeatRecord, schemeName string, scheme json.Marshaler, tag json.Marshaler, state json.Marshaler) error {
	schemeWire, err := scheme.MarshalJSON()
	if err != nil {
		return err
	}
	tagWire, err := tag.MarshalJSON()
	if err != nil {
		return err
	}
	stateWire, err := state.MarshalJSON()
	if err != nil {
		return err
	}
	record.Scheme = schemeName
	record.SchemeData = schemeWire
	record.Tag = tagWire
	record.State = stateWire
	return nil
}

// loadRecord fetches a beat record or fails with a clear message
func loadRecord(beats store.IBeatStore, id string) (*store.BeatRecord, error) {
	record, err := beats.LoadBeat(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("beat %s not found", id)
	}
	return record, nil
}

// writeOut writes JSON to the --out file, or stdout when unset
func writeOut(c *cli.Context, data []byte) error {
	if out := c.String("out"); out != "" {
		return os.WriteFile(out, data, 0o600)
	}
	fmt.Println(string(data))
	return nil
}

func runChallenge(c *cli.Context) error {
	l, err := buildLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	beats, err := buildStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = beats.Close() }()

	record, err := loadRecord(beats, c.String("id"))
	if err != nil {
		return err
	}

	var chalWire, stateWire []byte
	switch record.Scheme {
	case store.SchemeMerkle:
		scheme := &merkle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		state := &merkle.State{}
		if err := state.UnmarshalJSON(record.State); err != nil {
			return err
		}
		chal, err := scheme.GenChallenge(state)
		if err != nil {
			return errors.Wrap(err, "failed to generate challenge")
		}
		if chalWire, err = chal.MarshalJSON(); err != nil {
			return err
		}
		if stateWire, err = state.MarshalJSON(); err != nil {
			return err
		}
	case store.SchemeSwizzle:
		scheme := &swizzle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		state := &swizzle.State{}
		if err := state.UnmarshalJSON(record.State); err != nil {
			return err
		}
		chal, err := scheme.GenChallenge(state)
		if err != nil {
			return errors.Wrap(err, "failed to generate challenge")
		}
		if chalWire, err = chal.MarshalJSON(); err != nil {
			return err
		}
		if stateWire, err = state.MarshalJSON(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown scheme in record: %s", record.Scheme)
	}

	// The advanced state must be durable before the challenge leaves
	if err := beats.UpdateState(record.ID, stateWire); err != nil {
		return errors.Wrap(err, "failed to persist advanced state")
	}

	return writeOut(c, chalWire)
}

func runProve(c *cli.Context) error {
	l, err := buildLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	beats, err := buildStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = beats.Close() }()

	record, err := loadRecord(beats, c.String("id"))
	if err != nil {
		return err
	}

	chalData, err := os.ReadFile(c.String("challenge"))
	if err != nil {
		return errors.Wrap(err, "failed to read challenge")
	}

	file, err := os.Open(c.String("file"))
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = file.Close() }()

	var proofWire []byte
	switch record.Scheme {
	case store.SchemeMerkle:
		scheme := &merkle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		tag := &merkle.Tag{}
		if err := tag.UnmarshalJSON(record.Tag); err != nil {
			return err
		}
		chal := &merkle.Challenge{}
		if err := chal.UnmarshalJSON(chalData); err != nil {
			return err
		}
		proof, err := scheme.Public().Prove(file, chal, tag)
		if err != nil {
			return errors.Wrap(err, "prove failed")
		}
		if proofWire, err = proof.MarshalJSON(); err != nil {
			return err
		}
	case store.SchemeSwizzle:
		scheme := &swizzle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		tag := &swizzle.Tag{}
		if err := tag.UnmarshalJSON(record.Tag); err != nil {
			return err
		}
		chal := &swizzle.Challenge{}
		if err := chal.UnmarshalJSON(chalData); err != nil {
			return err
		}
		proof, err := scheme.Public().Prove(file, chal, tag)
		if err != nil {
			return errors.Wrap(err, "prove failed")
		}
		if proofWire, err = proof.MarshalJSON(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown scheme in record: %s", record.Scheme)
	}

	return writeOut(c, proofWire)
}

func runVerify(c *cli.Context) error {
	l, err := buildLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	beats, err := buildStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = beats.Close() }()

	record, err := loadRecord(beats, c.String("id"))
	if err != nil {
		return err
	}

	chalData, err := os.ReadFile(c.String("challenge"))
	if err != nil {
		return errors.Wrap(err, "failed to read challenge")
	}
	proofData, err := os.ReadFile(c.String("proof"))
	if err != nil {
		return errors.Wrap(err, "failed to read proof")
	}

	var ok bool
	switch record.Scheme {
	case store.SchemeMerkle:
		scheme := &merkle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		state := &merkle.State{}
		if err := state.UnmarshalJSON(record.State); err != nil {
			return err
		}
		chal := &merkle.Challenge{}
		if err := chal.UnmarshalJSON(chalData); err != nil {
			return err
		}
		proof := &merkle.Proof{}
		if err := proof.UnmarshalJSON(proofData); err != nil {
			return err
		}
		if ok, err = scheme.Verify(proof, chal, state); err != nil {
			return errors.Wrap(err, "verify failed")
		}
	case store.SchemeSwizzle:
		scheme := &swizzle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		state := &swizzle.State{}
		if err := state.UnmarshalJSON(record.State); err != nil {
			return err
		}
		chal := &swizzle.Challenge{}
		if err := chal.UnmarshalJSON(chalData); err != nil {
			return err
		}
		proof := &swizzle.Proof{}
		if err := proof.UnmarshalJSON(proofData); err != nil {
			return err
		}
		if ok, err = scheme.Verify(proof, chal, state); err != nil {
			return errors.Wrap(err, "verify failed")
		}
	default:
		return fmt.Errorf("unknown scheme in record: %s", record.Scheme)
	}

	if !ok {
		fmt.Println("FAIL")
		return cli.Exit("proof does not satisfy the challenge", 1)
	}
	fmt.Println("PASS")
	return nil
}

func runAudit(c *cli.Context) error {
	l, err := buildLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	beats, err := buildStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = beats.Close() }()

	record, err := loadRecord(beats, c.String("id"))
	if err != nil {
		return err
	}

	file, err := os.Open(c.String("file"))
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = file.Close() }()

	cfg := auditor.Config{
		BeatID:   record.ID,
		Interval: c.Duration("interval"),
		Rounds:   c.Int("rounds"),
	}

	var passed, failed int
	switch record.Scheme {
	case store.SchemeMerkle:
		scheme := &merkle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		prover := auditor.LocalProver[*merkle.Tag, *merkle.State, *merkle.Challenge, *merkle.Proof](scheme.Public(), file)
		aud, err := auditor.New[*merkle.Tag, *merkle.State, *merkle.Challenge, *merkle.Proof](scheme, beats, prover, cfg, l)
		if err != nil {
			return err
		}
		passed, failed, err = aud.Run(c.Context)
		if err != nil {
			return err
		}
	case store.SchemeSwizzle:
		scheme := &swizzle.Scheme{}
		if err := scheme.UnmarshalJSON(record.SchemeData); err != nil {
			return err
		}
		prover := auditor.LocalProver[*swizzle.Tag, *swizzle.State, *swizzle.Challenge, *swizzle.Proof](scheme.Public(), file)
		aud, err := auditor.New[*swizzle.Tag, *swizzle.State, *swizzle.Challenge, *swizzle.Proof](scheme, beats, prover, cfg, l)
		if err != nil {
			return err
		}
		passed, failed, err = aud.Run(c.Context)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown scheme in record: %s", record.Scheme)
	}

	l.Sugar().Infow("Audit finished", "beat_id", record.ID, "passed", passed, "failed", failed)
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d audit rounds failed", failed), 1)
	}
	return nil
}
