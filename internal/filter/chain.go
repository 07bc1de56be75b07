package filter

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/labtiva/curator/internal/entity"
)

// Chain applies specs in order; each step sees only the previous step's
// output.
type Chain struct {
	specs []Spec
	log   zerolog.Logger
}

func NewChain(specs []Spec, log zerolog.Logger) *Chain {
	return &Chain{
		specs: specs,
		log:   log.With().Str("component", "filter").Logger(),
	}
}

func (c *Chain) Specs() []Spec {
	return c.specs
}

// Validate checks every step up front so a malformed spec fails the chain
// before any entity is evaluated.
func (c *Chain) Validate(kind entity.Kind) error {
	for i, s := range c.specs {
		if s == nil {
			return invalid("", "step %d is empty", i+1)
		}
		if err := s.Validate(kind); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *Chain) Apply(list *entity.List) (*entity.List, error) {
	if err := c.Validate(list.Kind()); err != nil {
		return nil, err
	}

	current := list
	for i, s := range c.specs {
		before := current.Len()
		next, err := dispatch(current, s)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		c.log.Debug().
			Int("step", i+1).
			Str("filter", Describe(s)).
			Int("before", before).
			Int("after", next.Len()).
			Msg("filter applied")
		current = next
	}
	return current, nil
}
