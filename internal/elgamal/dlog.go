package elgamal

import (
	"crypto/subtle"
	"sync"

	"filippo.io/edwards25519"
)

const (
	babyBits   = 16
	babySteps  = 1 << babyBits
	giantSteps = 1 << (AmountBits - babyBits)
)

type dlogTable struct {
	baby  map[[32]byte]uint32
	giant *edwards25519.Point // babySteps·G
}

var (
	tableOnce sync.Once
	shared    *dlogTable
)

// table returns the process-wide baby-step table, building it on first use.
func table() *dlogTable {
	tableOnce.Do(func() {
		shared = buildTable()
	})
	return shared
}

// WarmUp builds the decryption table ahead of the first Decrypt call.
func WarmUp() {
	table()
}

func buildTable() *dlogTable {
	t := &dlogTable{baby: make(map[[32]byte]uint32, babySteps)}
	g := edwards25519.NewGeneratorPoint()
	p := edwards25519.NewIdentityPoint()
	var key [32]byte
	for j := uint32(0); j < babySteps; j++ {
		copy(key[:], p.Bytes())
		t.baby[key] = j
		p.Add(p, g)
	}
	// p is now babySteps·G
	t.giant = new(edwards25519.Point).Set(p)
	return t
}

// solve finds m in [0, 2^AmountBits) with m·G == target. Every giant step is
// visited regardless of where the match is, so the running time does not
// depend on the plaintext.
func (t *dlogTable) solve(target *edwards25519.Point) (uint32, bool) {
	q := new(edwards25519.Point).Set(target)
	var key [32]byte
	found := 0
	result := 0
	for i := 0; i < giantSteps; i++ {
		copy(key[:], q.Bytes())
		j, ok := t.baby[key]
		hit := boolToInt(ok) & (1 - found)
		result = subtle.ConstantTimeSelect(hit, i*babySteps+int(j), result)
		found |= boolToInt(ok)
		q.Subtract(q, t.giant)
	}
	return uint32(result), found == 1
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
