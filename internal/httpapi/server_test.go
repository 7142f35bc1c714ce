package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"biblerag/internal/composer"
	"biblerag/internal/domain"
	"biblerag/internal/retrieval"
	"biblerag/internal/service"
	"biblerag/internal/session"
)

type fakeService struct {
	sessions *session.Store
	lastMode domain.Mode
}

func newFakeService() *fakeService { return &fakeService{sessions: session.NewStore(0)} }

func (f *fakeService) Ask(_ context.Context, sessionID, question string, mode domain.Mode) (service.Reply, error) {
	if strings.TrimSpace(question) == "" {
		return service.Reply{}, service.ErrEmptyQuestion
	}
	sess, err := f.sessions.GetOrNew(sessionID)
	if err != nil {
		return service.Reply{}, err
	}
	f.lastMode = mode
	sess.Append(session.Turn{Question: question, Answer: "answer", Mode: mode, Outcome: string(composer.OutcomeScripture)})
	return service.Reply{
		SessionID: sess.ID,
		Answer:    "answer",
		Outcome:   composer.OutcomeScripture,
		Method:    retrieval.MethodSemantic,
		Mode:      mode.String(),
	}, nil
}

func (f *fakeService) Session(id string) (*session.Session, error) { return f.sessions.Get(id) }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, New(newFakeService(), Options{}).Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAskAndSession(t *testing.T) {
	svc := newFakeService()
	h := New(svc, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/ask", `{"question":"Explain Genesis 3","mode":"commentary"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ask = %d %s", rec.Code, rec.Body.String())
	}
	var reply service.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.SessionID == "" || reply.Mode != "commentary" || svc.lastMode != domain.ModeScriptureWithCommentary {
		t.Errorf("reply = %+v", reply)
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/"+reply.SessionID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session = %d %s", rec.Code, rec.Body.String())
	}
	var sess sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.ID != reply.SessionID || len(sess.Turns) != 1 || sess.Turns[0].ModeName != "commentary" {
		t.Errorf("session = %+v", sess)
	}
}

func TestAskErrors(t *testing.T) {
	h := New(newFakeService(), Options{}).Handler()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{"question":`, http.StatusBadRequest},
		{"empty question", `{"question":"  "}`, http.StatusBadRequest},
		{"unknown mode", `{"question":"Genesis 1","mode":"loud"}`, http.StatusBadRequest},
		{"too long", `{"question":"` + strings.Repeat("a", maxQuestionLen+1) + `"}`, http.StatusBadRequest},
		{"unknown session", `{"question":"Genesis 1","session_id":"nope"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/ask", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUnknownSession(t *testing.T) {
	rec := do(t, New(newFakeService(), Options{}).Handler(), http.MethodGet, "/api/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
