package main

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cmwaters/privpoll/internal/config"
	"github.com/cmwaters/privpoll/pkg/homomorphic"
	"github.com/cmwaters/privpoll/poll"
)

// simulateCommand runs a whole poll in memory and checks the decrypted tally
// against the plaintext choices.
func simulateCommand() *cobra.Command {
	var (
		voters  int
		options int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory poll end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := commonRun(cfg)
			if !globalFlags.debug {
				logger = logger.Level(zerolog.WarnLevel)
			}
			owner := poll.Identity(cfg.Owner)

			scheme := homomorphic.NewScheme(homomorphic.GenerateKey(), uint64(voters))
			voter := homomorphic.NewVoter(scheme.PublicKey())
			engine, err := poll.New(scheme, owner, poll.WithLogger(logger))
			if err != nil {
				return err
			}

			labels := make([]string, options)
			for i := range labels {
				labels[i] = fmt.Sprintf("option %d", i)
			}
			id, err := engine.CreatePoll("simulation", "simulated poll", labels, 3600, owner)
			if err != nil {
				return err
			}

			expected := make([]uint64, options)
			for i := 0; i < voters; i++ {
				identity := poll.Identity(fmt.Sprintf("voter-%d", i))
				choice := rand.Intn(options)
				ballot, ballotProof, err := voter.Ballot(poll.BallotContext{PollID: id, Voter: identity})
				if err != nil {
					return err
				}
				if err := engine.Vote(id, choice, ballot, ballotProof, identity); err != nil {
					return err
				}
				expected[choice]++
			}
			if err := engine.ClosePoll(id, owner); err != nil {
				return err
			}
			if _, err := engine.RequestDecryption(id, owner); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for option := range labels {
				if err := engine.AllowDecryptorAccess(id, option, owner, owner); err != nil {
					return err
				}
				count, err := engine.DecryptVoteCount(id, option, owner)
				if err != nil {
					return err
				}
				if count != expected[option] {
					return fmt.Errorf("%s: decrypted %d votes, expected %d", labels[option], count, expected[option])
				}
				fmt.Fprintf(out, "%s: %d\n", labels[option], count)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&voters, "voters", 25, "number of voters")
	cmd.Flags().IntVar(&options, "options", 3, "number of options")
	return cmd
}
