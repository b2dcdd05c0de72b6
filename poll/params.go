package poll

// Parameters bound the shape of polls the engine accepts.
type Parameters struct {
	// MinOptions and MaxOptions bound the number of options of a poll,
	// inclusive on both ends.
	MinOptions int
	MaxOptions int

	// MaxDuration caps the duration of a poll in seconds. Zero means no cap
	// beyond the requirement that the end time fits in a uint64.
	MaxDuration uint64
}

func DefaultParameters() Parameters {
	return Parameters{
		MinOptions: 2,
		MaxOptions: 10,
	}
}
