package keygen

import (
	"math/rand"
	"strconv"
)

// Mode selects the key policy for a worker.
type Mode int

const (
	// ModeFixed yields "key:<worker>:<counter>" keys.
	ModeFixed Mode = iota
	// ModeRandom yields keys uniformly from [offset, offset+keyspace).
	ModeRandom
	// ModeSequential yields "key:<(counter mod keyspace)+offset>".
	ModeSequential
)

// Generator produces the key for the next operation. One generator per
// worker; the only state is the local counter and the worker's RNG.
type Generator struct {
	mode     Mode
	workerID int
	keyspace int64
	offset   int64
	counter  int64
	rng      *rand.Rand
}

// New builds a generator for one worker. With ModeSequential and
// randomStart set, the starting counter is randomized within the keyspace
// so that workers spread their writes across shards.
func New(mode Mode, workerID int, keyspace, offset int64, randomStart bool, seed int64) *Generator {
	g := &Generator{
		mode:     mode,
		workerID: workerID,
		keyspace: keyspace,
		offset:   offset,
		rng:      rand.New(rand.NewSource(seed)),
	}
	if mode == ModeSequential && randomStart && keyspace > 0 {
		g.counter = g.rng.Int63n(keyspace)
	}
	return g
}

// Next returns the key for the next operation.
func (g *Generator) Next() string {
	switch g.mode {
	case ModeRandom:
		return "key:" + strconv.FormatInt(g.offset+g.rng.Int63n(g.keyspace), 10)
	case ModeSequential:
		n := g.offset + g.counter%g.keyspace
		g.counter++
		return "key:" + strconv.FormatInt(n, 10)
	default:
		k := "key:" + strconv.Itoa(g.workerID) + ":" + strconv.FormatInt(g.counter, 10)
		g.counter++
		return k
	}
}

// ValueSource fills value buffers with uppercase letters from a seeded
// linear-congruential generator.
type ValueSource struct {
	state uint32
}

// NewValueSource seeds a value source.
func NewValueSource(seed uint32) *ValueSource {
	return &ValueSource{state: seed}
}

// Fill overwrites buf with generated characters. The same buffer may be
// reused by a worker across calls.
func (v *ValueSource) Fill(buf []byte) {
	for i := range buf {
		v.state = v.state*1103515245 + 12345
		buf[i] = 'A' + byte((v.state>>16)%26)
	}
}

// String returns a fresh generated value of the given size.
func (v *ValueSource) String(size int) string {
	buf := make([]byte, size)
	v.Fill(buf)
	return string(buf)
}
