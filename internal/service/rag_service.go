// Package service ties the pipeline together: building artifacts offline
// and answering questions against the loaded ones.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"biblerag/internal/composer"
	"biblerag/internal/domain"
	"biblerag/internal/retrieval"
	"biblerag/internal/session"
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("biblerag: empty question")

// Reply is the answer to one question plus how it was produced.
type Reply struct {
	SessionID string           `json:"session_id"`
	Answer    string           `json:"answer"`
	Outcome   composer.Outcome `json:"outcome"`
	Method    retrieval.Method `json:"method"`
	Reference string           `json:"reference,omitempty"`
	Mode      string           `json:"mode"`
}

// RAGService answers questions. It is safe for concurrent use.
type RAGService struct {
	engine   *retrieval.Engine
	composer *composer.Composer
	sessions *session.Store
}

func NewRAGService(engine *retrieval.Engine, c *composer.Composer, sessions *session.Store) *RAGService {
	if sessions == nil {
		sessions = session.NewStore(0)
	}
	return &RAGService{engine: engine, composer: c, sessions: sessions}
}

// NewSession starts an empty chat session.
func (s *RAGService) NewSession() *session.Session { return s.sessions.New() }

// Session returns an existing session.
func (s *RAGService) Session(id string) (*session.Session, error) { return s.sessions.Get(id) }

// Ask retrieves context for question, composes the answer and records the
// turn in the session. An empty sessionID starts a new session. Retrieval
// failures are logged and answered from empty context.
func (s *RAGService) Ask(ctx context.Context, sessionID, question string, mode domain.Mode) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}
	sess, err := s.sessions.GetOrNew(sessionID)
	if err != nil {
		return Reply{}, err
	}

	res, err := s.engine.Retrieve(ctx, question, mode)
	if err != nil {
		slog.Warn("service: retrieval failed", "err", err)
		res = retrieval.Result{Method: retrieval.MethodNone}
	}
	ans := s.composer.Compose(ctx, composer.Input{
		Question:   question,
		Mode:       mode,
		Scripture:  res.Scripture,
		Commentary: res.Commentary,
	})
	sess.Append(session.Turn{
		Question: question,
		Answer:   ans.Text,
		Mode:     mode,
		Outcome:  string(ans.Outcome),
	})

	reply := Reply{
		SessionID: sess.ID,
		Answer:    ans.Text,
		Outcome:   ans.Outcome,
		Method:    res.Method,
		Mode:      mode.String(),
	}
	if res.Exact {
		reply.Reference = res.Ref.String()
	}
	slog.Debug("service: answered", "session", sess.ID, "method", res.Method, "outcome", ans.Outcome)
	return reply, nil
}
