package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fileflow/pkg/types"
)

var fixedNow = time.Date(2024, 6, 19, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeOpenAI serves chat completions with chatReply and embeddings of dim.
func fakeOpenAI(t *testing.T, chatReply string, dim int) (*httptest.Server, *[]chatRequest) {
	t.Helper()
	var chats []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req chatRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			chats = append(chats, req)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{{"message": map[string]string{"content": chatReply}}},
			})
		case "/v1/embeddings":
			vec := make([]float64, dim)
			for i := range vec {
				vec[i] = 0.5
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"embedding": vec}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &chats
}

func TestAnalyzeParsesReply(t *testing.T) {
	reply := `{"suggested_name":"2024-06-19_AcmeCorp_Invoice","entities":["Acme Corp"],"confidence":0.9,"reasoning":"invoice","date":"2024-06-19","keywords":["invoice"]}`
	srv, chats := fakeOpenAI(t, reply, 4)

	svc := NewService(NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"}), 4, WithClock(fixedClock))
	hints := []types.RelatedDocument{{FilePath: "/watch/old.txt", Entities: []string{"Acme Corp"}}}
	got := svc.Analyze(context.Background(), "Invoice for Acme Corp dated 2024-06-19",
		types.FileMetadata{FileName: "invoice.txt", Extension: ".txt", SizeBytes: 38}, hints)

	assert.Equal(t, "2024-06-19_AcmeCorp_Invoice", got.SuggestedName)
	assert.Equal(t, []string{"Acme Corp"}, got.Entities)
	assert.Equal(t, 0.9, got.Confidence)

	require.Len(t, *chats, 1)
	req := (*chats)[0]
	assert.Equal(t, DefaultChatModel, req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, SystemPrompt, req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, "- File: /watch/old.txt, Entities: [Acme Corp]")
	assert.Contains(t, req.Messages[1].Content, "use today's date: 2024-06-19")
}

func TestAnalyzeFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewService(NewClient(ClientConfig{BaseURL: srv.URL}), 4, WithClock(fixedClock))
	got := svc.Analyze(context.Background(), "text", types.FileMetadata{}, nil)
	assert.Equal(t, "2024-06-19_Unknown_Document", got.SuggestedName)
	assert.Equal(t, 0.1, got.Confidence)
	assert.Empty(t, got.Entities)
	assert.Contains(t, got.Reasoning, "503")
}

func TestAnalyzeFallsBackOnGarbage(t *testing.T) {
	srv, _ := fakeOpenAI(t, "I cannot help with that", 4)
	svc := NewService(NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"}), 4, WithClock(fixedClock))
	got := svc.Analyze(context.Background(), "text", types.FileMetadata{}, nil)
	assert.Equal(t, "2024-06-19_Unknown_Document", got.SuggestedName)
}

func TestServiceWithoutBackend(t *testing.T) {
	svc := NewService(nil, 3, WithClock(fixedClock))
	got := svc.Analyze(context.Background(), "text", types.FileMetadata{}, nil)
	assert.Equal(t, "2024-06-19_Unknown_Document", got.SuggestedName)
	assert.Equal(t, []float32{0, 0, 0}, svc.Embed(context.Background(), "text"))
}

func TestEmbed(t *testing.T) {
	srv, _ := fakeOpenAI(t, "{}", 4)
	svc := NewService(NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"}), 4)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, svc.Embed(context.Background(), "hello"))

	// A model returning another dimension degrades to the zero vector.
	mismatched := NewService(NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"}), 8)
	assert.Equal(t, make([]float32, 8), mismatched.Embed(context.Background(), "hello"))
}

type recordingBackend struct {
	lastEmbed string
}

func (r *recordingBackend) ChatJSON(context.Context, string, string) (string, error) {
	return "", errors.New("unused")
}

func (r *recordingBackend) Embedding(_ context.Context, text string) ([]float32, error) {
	r.lastEmbed = text
	return []float32{1}, nil
}

func TestEmbedTruncatesInput(t *testing.T) {
	rb := &recordingBackend{}
	svc := NewService(rb, 1)
	svc.Embed(context.Background(), strings.Repeat("x", 9000))
	assert.Len(t, rb.lastEmbed, MaxEmbeddingContentChars)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Breaker: BreakerConfig{MaxFailures: 2, Timeout: time.Minute}})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Embedding(ctx, "x")
		require.Error(t, err)
	}
	_, err := client.Embedding(ctx, "x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "open", client.Breakers()["embeddings"])
	assert.Equal(t, "closed", client.Breakers()["chat"])
}

func TestCircuitBreakerRejectsCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ran", nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(1), cb.Metrics().TotalFailures)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv, _ := fakeOpenAI(t, "{}", 1)
	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test", RequestsPerSecond: 0.001})

	_, err := client.Embedding(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Embedding(ctx, "second")
	assert.Error(t, err)
}
