package pow

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// batchSize is the number of attempts a worker makes between cancellation
// checks. At typical hash rates this bounds cancellation latency to a few
// milliseconds.
const batchSize = 512

// Progress describes the state of a running search. It is emitted once per
// new best difficulty.
type Progress struct {
	Attempts       uint64
	BestDifficulty int
	Elapsed        time.Duration
	HashRate       float64
}

// ProgressFunc observes search progress. It is invoked from a single
// goroutine; observers need no locking.
type ProgressFunc func(Progress)

// Result is a nonce whose node id satisfied the search target.
type Result struct {
	Nonce      Nonce
	NodeID     NodeID
	Difficulty int
}

// Miner searches the nonce space for a node id meeting a leading-zero-bit
// difficulty target. Workers share only the immutable public key; the first
// worker to satisfy the target wins and the rest stop.
type Miner struct {
	workers    int
	onProgress ProgressFunc
}

type MinerOption func(*Miner)

// WithWorkers sets the worker count. Defaults to the CPU count.
func WithWorkers(n int) MinerOption {
	return func(m *Miner) {
		m.workers = n
	}
}

// WithProgress attaches a progress observer.
func WithProgress(fn ProgressFunc) MinerOption {
	return func(m *Miner) {
		m.onProgress = fn
	}
}

func NewMiner(opts ...MinerOption) *Miner {
	m := &Miner{workers: runtime.NumCPU()}

	for _, opt := range opts {
		opt(m)
	}

	if m.workers < 1 {
		m.workers = 1
	}

	return m
}

// Mine searches until a nonce's node id reaches target leading zero bits.
// The search is unbounded and probabilistic; the only exit besides success
// is cancellation of ctx, which discards all progress.
func (m *Miner) Mine(ctx context.Context, publicKey []byte, target int) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var attempts uint64
	candidates := make(chan Result, m.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.workers; i++ {
		seed, err := cryptoSeed()
		if err != nil {
			return nil, errors.Wrap(err, "seeding worker")
		}

		g.Go(func() error {
			return m.search(gctx, publicKey, seed, &attempts, candidates)
		})
	}

	workersDone := make(chan struct{})
	go func() {
		g.Wait()
		close(workersDone)
	}()

	start := time.Now()
	best := -1

	for {
		select {
		case c := <-candidates:
			if c.Difficulty <= best {
				continue
			}
			best = c.Difficulty
			m.emit(atomic.LoadUint64(&attempts), best, start)

			if c.Difficulty >= target {
				cancel()
				<-workersDone
				return &c, nil
			}
		case <-workersDone:
			return nil, ctx.Err()
		}
	}
}

// search is a single worker loop. It reports candidates that beat its local
// best; since the global best is always at least some worker's local best,
// every global improvement reaches the collector.
func (m *Miner) search(ctx context.Context, publicKey []byte, seed int64, attempts *uint64, out chan<- Result) error {
	rnd := rand.New(rand.NewSource(seed))
	best := -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for i := 0; i < batchSize; i++ {
			nonce := randNonce(rnd)
			id := ComputeNodeID(publicKey, nonce)

			if d := id.Difficulty(); d > best {
				best = d
				select {
				case out <- Result{Nonce: nonce, NodeID: id, Difficulty: d}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		atomic.AddUint64(attempts, batchSize)
	}
}

func (m *Miner) emit(attempts uint64, best int, start time.Time) {
	if m.onProgress == nil {
		return
	}

	elapsed := time.Since(start)

	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(attempts) / secs
	}

	m.onProgress(Progress{
		Attempts:       attempts,
		BestDifficulty: best,
		Elapsed:        elapsed,
		HashRate:       rate,
	})
}

func cryptoSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
