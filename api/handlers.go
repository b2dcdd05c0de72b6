package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cmwaters/privpoll/poll"
)

type createPollRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
	Duration    uint64   `json:"duration"`
}

type createPollResponse struct {
	ID uint64 `json:"id"`
}

type voteRequest struct {
	Option int             `json:"option"`
	Ballot poll.Ciphertext `json:"ballot"`
	Proof  []byte          `json:"proof"`
}

type grantRequest struct {
	Grantee poll.Identity `json:"grantee"`
}

type ciphertextResponse struct {
	Ciphertext poll.Ciphertext `json:"ciphertext"`
	Handle     string          `json:"handle"`
}

func (s *Server) getPublicKey(w http.ResponseWriter, r *http.Request) {
	if s.publicKey == "" {
		writeError(w, http.StatusNotFound, "no public key configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.publicKey})
}

func (s *Server) createPoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	id, err := s.engine.CreatePoll(req.Title, req.Description, req.Options, req.Duration, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPollResponse{ID: id})
}

func (s *Server) listPolls(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.PollCount()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	polls := make([]poll.Info, 0, count)
	for id := uint64(0); id < count; id++ {
		info, err := s.engine.GetPollInfo(id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		polls = append(polls, info)
	}
	writeJSON(w, http.StatusOK, polls)
}

func (s *Server) getPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	info, err := s.engine.GetPollInfo(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) getOptions(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	options, err := s.engine.GetPollOptions(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"options": options})
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := s.engine.Vote(id, req.Option, req.Ballot, req.Proof, caller(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) closePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	if err := s.engine.ClosePoll(id, caller(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) hasVoted(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	voted, err := s.engine.HasVoted(id, poll.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasVoted": voted})
}

func (s *Server) requestDecryption(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	requested, err := s.engine.RequestDecryption(id, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"requested": requested})
}

func (s *Server) isDecrypted(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	decrypted, err := s.engine.IsDecrypted(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"decrypted": decrypted})
}

func (s *Server) grantAccess(w http.ResponseWriter, r *http.Request) {
	id, option, ok := pollOption(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := s.engine.AllowDecryptorAccess(id, option, req.Grantee, caller(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCiphertext(w http.ResponseWriter, r *http.Request) {
	id, option, ok := pollOption(w, r)
	if !ok {
		return
	}
	ct, err := s.engine.GetEncryptedVoteCount(id, option, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ciphertextResponse{Ciphertext: ct, Handle: ct.Handle()})
}

func (s *Server) getCount(w http.ResponseWriter, r *http.Request) {
	id, option, ok := pollOption(w, r)
	if !ok {
		return
	}
	count, err := s.engine.DecryptVoteCount(id, option, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (s *Server) isDecryptor(w http.ResponseWriter, r *http.Request) {
	authorized, err := s.engine.IsAuthorizedDecryptor(poll.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authorized": authorized})
}

func (s *Server) authorizeDecryptor(w http.ResponseWriter, r *http.Request) {
	err := s.engine.AuthorizeDecryptor(poll.Identity(chi.URLParam(r, "identity")), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) revokeDecryptor(w http.ResponseWriter, r *http.Request) {
	err := s.engine.RevokeDecryptor(poll.Identity(chi.URLParam(r, "identity")), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func pollID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid poll id")
		return 0, false
	}
	return id, true
}

func pollOption(w http.ResponseWriter, r *http.Request) (uint64, int, bool) {
	id, ok := pollID(w, r)
	if !ok {
		return 0, 0, false
	}
	option, err := strconv.Atoi(chi.URLParam(r, "option"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid option")
		return 0, 0, false
	}
	return id, option, true
}
