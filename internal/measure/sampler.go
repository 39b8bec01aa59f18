package measure

import (
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidWeight is returned when pool weights do not add up to a valid draw.
var ErrInvalidWeight = errors.New("endpoint pool weights are inconsistent")

// Pool is the set of endpoints still eligible for sampling in one run.
// It is not safe for concurrent use.
type Pool struct {
	specs []EndpointSpec
	sum   int
}

// NewPool copies specs into a fresh pool.
func NewPool(specs []EndpointSpec) *Pool {
	p := &Pool{specs: make([]EndpointSpec, len(specs))}
	copy(p.specs, specs)
	for _, s := range p.specs {
		p.sum += s.Weight
	}
	return p
}

// Len returns the number of endpoints left in the pool.
func (p *Pool) Len() int {
	return len(p.specs)
}

// Weight returns the sum of weights left in the pool.
func (p *Pool) Weight() int {
	return p.sum
}

// pick returns the index whose cumulative weight first exceeds draw, or -1.
func (p *Pool) pick(draw int) int {
	acc := 0
	for i, spec := range p.specs {
		acc += spec.Weight
		if draw < acc {
			return i
		}
	}
	return -1
}

// take removes the spec at index i by swapping the last element into its slot.
func (p *Pool) take(i int) EndpointSpec {
	spec := p.specs[i]
	last := len(p.specs) - 1
	p.specs[i] = p.specs[last]
	p.specs[last] = EndpointSpec{}
	p.specs = p.specs[:last]
	p.sum -= spec.Weight
	return spec
}

// Sampler draws weighted endpoints without replacement.
type Sampler struct {
	rnd *rand.Rand
}

// NewSampler returns a sampler drawing from rnd. A nil rnd is replaced by a
// time-seeded source.
func NewSampler(rnd *rand.Rand) *Sampler {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sampler{rnd: rnd}
}

// Sample removes min(count, pool.Len()) endpoints from pool and returns
// them in draw order.
func (s *Sampler) Sample(pool *Pool, count int) ([]EndpointSpec, error) {
	if count > pool.Len() {
		count = pool.Len()
	}
	if count <= 0 {
		return nil, nil
	}

	out := make([]EndpointSpec, 0, count)
	for len(out) < count {
		if pool.Weight() <= 0 {
			return out, ErrZeroWeight
		}
		i := pool.pick(s.rnd.Intn(pool.Weight()))
		if i < 0 {
			return out, ErrInvalidWeight
		}
		out = append(out, pool.take(i))
	}
	return out, nil
}
