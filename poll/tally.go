package poll

import "fmt"

// zeroTally returns one fresh encryption of zero per option.
func (e *Engine) zeroTally(options int) ([]Ciphertext, error) {
	tally := make([]Ciphertext, options)
	for i := range tally {
		zero, err := e.ops.Zero()
		if err != nil {
			return nil, fmt.Errorf("encrypting zero tally: %w", err)
		}
		tally[i] = zero
	}
	return tally, nil
}

// accumulate adds ballot to the current tally of an option and carries every
// grant on the option over to the resulting ciphertext. Nothing is persisted
// here: the caller stores the returned tally together with the voter record.
func (e *Engine) accumulate(pollID uint64, option int, current, ballot Ciphertext) (Ciphertext, error) {
	sum, err := e.ops.Add(current, ballot)
	if err != nil {
		return nil, fmt.Errorf("adding ballot to poll %d option %d: %w", pollID, option, err)
	}
	grantees, err := e.registry.Grantees(pollID, option)
	if err != nil {
		return nil, err
	}
	for _, grantee := range grantees {
		if err := e.ops.GrantRead(sum, grantee); err != nil {
			return nil, fmt.Errorf("carrying grant of %s to new tally: %w", grantee, err)
		}
	}
	return sum, nil
}

// RestoreGrants re-applies every recorded grant to the current tallies. A
// CiphertextOps that keeps its grants in memory loses them on restart while a
// durable store keeps the relation, so this is called once at start up.
func (e *Engine) RestoreGrants() error {
	count, err := e.store.PollCount()
	if err != nil {
		return err
	}
	restored := 0
	for id := uint64(0); id < count; id++ {
		p, err := e.snapshot(id)
		if err != nil {
			return err
		}
		for option, ct := range p.Tally {
			grantees, err := e.registry.Grantees(id, option)
			if err != nil {
				return err
			}
			for _, grantee := range grantees {
				if err := e.ops.GrantRead(ct, grantee); err != nil {
					return fmt.Errorf("restoring grant of %s on poll %d option %d: %w", grantee, id, option, err)
				}
				restored++
			}
		}
	}
	e.logger.Info().Uint64("polls", count).Int("grants", restored).Msg("restored grants")
	return nil
}
