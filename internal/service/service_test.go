package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"biblerag/internal/cache"
	"biblerag/internal/chunker"
	"biblerag/internal/composer"
	"biblerag/internal/domain"
	"biblerag/internal/embedding/tfidf"
	"biblerag/internal/index"
	"biblerag/internal/llm"
	"biblerag/internal/retrieval"
	"biblerag/internal/session"
	"biblerag/internal/store"
)

const sampleBible = `GENESIS
{1:1} In the beginning God created the heaven and the earth.
{1:2} And the earth was without form, and void;
and darkness was upon the face of the deep.
{2:1} Thus the heavens and the earth were finished, and all the host of them.
{2:2} And on the seventh day God ended his work which he had made.
EXODUS
{1:1} Now these are the names of the children of Israel, which came into Egypt.
`

const sampleCommentary = `The creation account opens with God alone. Light is the first work.
The sabbath rest of the seventh day is a pattern for Israel.`

type fakeGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	return "generated from " + prompt[strings.Index(prompt, "Context:"):][:20], nil
}

type namedEmbedder struct{ domain.Embedder }

func (namedEmbedder) Name() string { return "other" }

func chunkerOpts(s domain.Strategy) chunker.Options {
	return chunker.Options{Strategy: s, Size: 2}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func buildScripture(t *testing.T, metric index.Metric) string {
	t.Helper()
	dir := t.TempDir()
	src := writeFile(t, dir, "kjv.txt", sampleBible)
	artifact := filepath.Join(dir, "artifacts", "scripture.db")
	rep, err := Build(context.Background(), BuildOptions{
		Paths:        []string{src},
		ArtifactPath: artifact,
		Chunker:      chunkerOpts(domain.StrategyRecord),
		Embedder:     tfidf.NewEmbedder(0),
		Metric:       metric,
		Workers:      2,
		BatchSize:    2,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rep.Documents != 1 || rep.Chunks != 5 || rep.Dimension == 0 || rep.Hash == "" {
		t.Fatalf("report = %+v", rep)
	}
	return artifact
}

func TestBuildAndLoad(t *testing.T) {
	for _, metric := range []index.Metric{index.MetricIP, index.MetricL2} {
		artifact := buildScripture(t, metric)
		for _, backend := range []string{"", "sqlitevec", "flat"} {
			t.Run(string(metric)+"/"+backend, func(t *testing.T) {
				a, err := Load(context.Background(), LoadOptions{
					Name:     "scripture",
					Path:     artifact,
					Embedder: tfidf.NewEmbedder(0),
					Backend:  backend,
				})
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				defer a.Close()
				c := a.Collection
				if len(c.Chunks) != 5 || c.Meta.ChunkCount != 5 {
					t.Fatalf("chunks = %d, meta = %+v", len(c.Chunks), c.Meta)
				}
				if c.Meta.Strategy != domain.StrategyRecord || c.Meta.Metric != metric || c.Meta.Normalized != metric.Normalizes() {
					t.Errorf("meta = %+v", c.Meta)
				}
				if c.Chunks[4].Text != "exodus|1|1|Now these are the names of the children of Israel, which came into Egypt." {
					t.Errorf("last chunk = %q", c.Chunks[4].Text)
				}

				eng := retrieval.NewEngine(c, nil, retrieval.Options{TopK: 2})
				hits, err := eng.SemanticSearch(context.Background(), c, "children of Israel in Egypt", 2)
				if err != nil {
					t.Fatal(err)
				}
				if len(hits) == 0 || hits[0].Chunk.Index != 4 {
					t.Errorf("hits = %+v", hits)
				}
			})
		}
	}
}

func TestSearchWithZeroVectorChunk(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "notes.txt", "The creation account opens with God alone. It is so. Light is the first work.")
	artifact := filepath.Join(dir, "commentary.db")
	_, err := Build(context.Background(), BuildOptions{
		Paths:        []string{src},
		ArtifactPath: artifact,
		Chunker:      chunker.Options{Strategy: domain.StrategySentence, Size: 1},
		Embedder:     tfidf.NewEmbedder(0),
		Metric:       index.MetricIP,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, backend := range []string{"sqlitevec", "flat"} {
		t.Run(backend, func(t *testing.T) {
			a, err := Load(context.Background(), LoadOptions{
				Name:     "commentary",
				Path:     artifact,
				Embedder: tfidf.NewEmbedder(0),
				Backend:  backend,
			})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			defer a.Close()
			c := a.Collection
			eng := retrieval.NewEngine(nil, c, retrieval.Options{})
			hits, err := eng.SemanticSearch(context.Background(), c, "creation light", 3)
			if err != nil {
				t.Fatalf("SemanticSearch: %v", err)
			}
			if len(hits) != 3 {
				t.Fatalf("len(hits) = %d, want 3", len(hits))
			}
			last := hits[len(hits)-1]
			if last.Chunk.Text != "It is so." || last.Distance != 1 {
				t.Errorf("last hit = %q at %v, want the stopword sentence at 1", last.Chunk.Text, last.Distance)
			}
		})
	}
}

func TestLoadRejectsOtherEmbedder(t *testing.T) {
	artifact := buildScripture(t, index.MetricIP)
	_, err := Load(context.Background(), LoadOptions{
		Name:     "scripture",
		Path:     artifact,
		Embedder: namedEmbedder{tfidf.NewEmbedder(0)},
	})
	if !errors.Is(err, ErrEmbedderMismatch) {
		t.Fatalf("err = %v, want ErrEmbedderMismatch", err)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(context.Background(), LoadOptions{
		Path:     filepath.Join(t.TempDir(), "absent.db"),
		Embedder: tfidf.NewEmbedder(0),
	})
	if !errors.Is(err, store.ErrNoArtifact) {
		t.Fatalf("err = %v, want ErrNoArtifact", err)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "notes.txt", "no book headings here\n{1:1} orphan\n")
	_, err := Build(context.Background(), BuildOptions{
		Paths:        []string{src},
		ArtifactPath: filepath.Join(dir, "a.db"),
		Embedder:     tfidf.NewEmbedder(0),
		Metric:       index.MetricIP,
	})
	if !errors.Is(err, ErrEmptyCorpus) {
		t.Fatalf("err = %v, want ErrEmptyCorpus", err)
	}
}

func newTestService(t *testing.T, gen domain.Generator) *RAGService {
	t.Helper()
	ctx := context.Background()
	scripture, err := Load(ctx, LoadOptions{
		Name:     "scripture",
		Path:     buildScripture(t, index.MetricIP),
		Embedder: tfidf.NewEmbedder(0),
		Backend:  "flat",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { scripture.Close() })

	dir := t.TempDir()
	commentaryPath := filepath.Join(dir, "commentary.db")
	_, err = Build(ctx, BuildOptions{
		Paths:        []string{writeFile(t, dir, "henry.txt", sampleCommentary)},
		ArtifactPath: commentaryPath,
		Chunker:      chunkerOpts(domain.StrategySentence),
		Embedder:     tfidf.NewEmbedder(0),
		Metric:       index.MetricIP,
	})
	if err != nil {
		t.Fatal(err)
	}
	commentary, err := Load(ctx, LoadOptions{Name: "commentary", Path: commentaryPath, Embedder: tfidf.NewEmbedder(0)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { commentary.Close() })

	eng := retrieval.NewEngine(scripture.Collection, commentary.Collection, retrieval.Options{})
	return NewRAGService(eng, composer.New(gen, cache.New()), session.NewStore(0))
}

func TestAskStructuredScriptureOnly(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(t, gen)

	reply, err := svc.Ask(context.Background(), "", "Explain Genesis 2", domain.ModeScriptureOnly)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Method != retrieval.MethodStructured || reply.Reference != "genesis 2" {
		t.Errorf("reply = %+v", reply)
	}
	want := "Relevant scripture:\nGenesis 2:1 Thus the heavens and the earth were finished, and all the host of them.\n" +
		"Genesis 2:2 And on the seventh day God ended his work which he had made."
	if reply.Answer != want {
		t.Errorf("answer =\n%s\nwant\n%s", reply.Answer, want)
	}
	if gen.calls.Load() != 0 {
		t.Errorf("scripture-only mode called the generator %d times", gen.calls.Load())
	}

	sess, err := svc.Session(reply.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	turns := sess.Turns()
	if len(turns) != 1 || turns[0].Question != "Explain Genesis 2" || turns[0].ModeName != "scripture" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestAskCommentaryCachesGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(t, gen)
	ctx := context.Background()

	first, err := svc.Ask(ctx, "", "What happened on the seventh day?", domain.ModeScriptureWithCommentary)
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != composer.OutcomeGenerated || first.Method != retrieval.MethodSemantic {
		t.Errorf("first = %+v", first)
	}
	second, err := svc.Ask(ctx, first.SessionID, "What happened on the seventh day?", domain.ModeScriptureWithCommentary)
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != composer.OutcomeCached || second.Answer != first.Answer {
		t.Errorf("second = %+v", second)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls.Load())
	}
	sess, _ := svc.Session(first.SessionID)
	if n := len(sess.Turns()); n != 2 {
		t.Errorf("turns = %d, want 2", n)
	}
}

func TestAskQuota(t *testing.T) {
	svc := newTestService(t, &fakeGenerator{err: llm.ErrRateLimited})
	reply, err := svc.Ask(context.Background(), "", "Explain Exodus 1", domain.ModeScriptureWithCommentary)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Answer != composer.QuotaMessage {
		t.Errorf("answer = %q", reply.Answer)
	}
}

func TestAskErrors(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Ask(context.Background(), "", "   ", domain.ModeScriptureOnly); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("blank question err = %v", err)
	}
	if _, err := svc.Ask(context.Background(), "missing", "Genesis 1", domain.ModeScriptureOnly); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("unknown session err = %v", err)
	}
}
