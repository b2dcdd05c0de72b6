// Package api exposes the poll engine over HTTP.
//
// Callers identify themselves with the X-Identity header. The header is
// trusted as is: authenticating it is the job of whatever sits in front of
// the server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cmwaters/privpoll/poll"
)

const IdentityHeader = "X-Identity"

// Engine is the part of the poll engine served over HTTP.
type Engine interface {
	CreatePoll(title, description string, options []string, duration uint64, caller poll.Identity) (uint64, error)
	Vote(pollID uint64, option int, ballot poll.Ciphertext, proof []byte, caller poll.Identity) error
	ClosePoll(pollID uint64, caller poll.Identity) error
	GetPollInfo(pollID uint64) (poll.Info, error)
	GetPollOptions(pollID uint64) ([]string, error)
	HasVoted(pollID uint64, identity poll.Identity) (bool, error)
	PollCount() (uint64, error)
	AuthorizeDecryptor(identity, caller poll.Identity) error
	RevokeDecryptor(identity, caller poll.Identity) error
	IsAuthorizedDecryptor(identity poll.Identity) (bool, error)
	AllowDecryptorAccess(pollID uint64, option int, grantee, caller poll.Identity) error
	GetEncryptedVoteCount(pollID uint64, option int, caller poll.Identity) (poll.Ciphertext, error)
	DecryptVoteCount(pollID uint64, option int, caller poll.Identity) (uint64, error)
	RequestDecryption(pollID uint64, caller poll.Identity) (bool, error)
	IsDecrypted(pollID uint64) (bool, error)
}

var _ Engine = (*poll.Engine)(nil)

type Server struct {
	engine    Engine
	publicKey string
	logger    zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPublicKey serves the hex encoded key ballots must be encrypted under
func WithPublicKey(publicKey string) Option {
	return func(s *Server) {
		s.publicKey = publicKey
	}
}

func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(identify)

	r.Get("/key", s.getPublicKey)

	r.Route("/polls", func(r chi.Router) {
		r.Post("/", s.createPoll)
		r.Get("/", s.listPolls)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getPoll)
			r.Get("/options", s.getOptions)
			r.Post("/votes", s.vote)
			r.Post("/close", s.closePoll)
			r.Get("/voters/{identity}", s.hasVoted)
			r.Post("/decryption", s.requestDecryption)
			r.Get("/decryption", s.isDecrypted)
			r.Route("/options/{option}", func(r chi.Router) {
				r.Post("/grants", s.grantAccess)
				r.Get("/ciphertext", s.getCiphertext)
				r.Get("/count", s.getCount)
			})
		})
	})

	r.Route("/decryptors/{identity}", func(r chi.Router) {
		r.Get("/", s.isDecryptor)
		r.Post("/", s.authorizeDecryptor)
		r.Delete("/", s.revokeDecryptor)
	})
	return r
}

type identityKey struct{}

func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := poll.Identity(r.Header.Get(IdentityHeader))
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller returns the identity of the request, empty when none was given.
func caller(r *http.Request) poll.Identity {
	identity, _ := r.Context().Value(identityKey{}).(poll.Identity)
	return identity
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
