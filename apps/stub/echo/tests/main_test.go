package tests

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"

	echostub "github.com/literate-limited/beeline/apps/stub/echo"
	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/core/chat"
	"github.com/literate-limited/beeline/core/session"
	"github.com/literate-limited/beeline/services/logsvc"
	"github.com/literate-limited/beeline/services/socketsvc"
)

// pairResolver derives a deterministic chat id for a user pair, so every
// participant lands in the same room without a backend.
type pairResolver struct{ userID string }

func (r pairResolver) GetOrCreateChat(_ context.Context, peerID string) (string, error) {
	ids := []string{r.userID, peerID}
	sort.Strings(ids)
	return "chat-" + strings.Join(ids, "-"), nil
}

func pairChatID(a, b string) string {
	id, _ := pairResolver{userID: a}.GetOrCreateChat(context.Background(), b)
	return id
}

func startStub(t *testing.T, opts echostub.Options) *httptest.Server {
	t.Helper()
	opts.DisableReqLogs = true
	if opts.Logger == nil {
		opts.Logger = logsvc.NewConsoleLoggerMock()
	}
	ts := httptest.NewServer(echostub.NewServer(opts))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// connectUser brings up a full user session over a real websocket client
// against the stub.
func connectUser(t *testing.T, ts *httptest.Server, userID string, tweak func(conf *core.Config)) *session.Session {
	t.Helper()

	conf := *core.Conf
	if tweak != nil {
		tweak(&conf)
	}

	token, err := session.SignToken(userID, userID, conf.SecretKey, time.Hour)
	if err != nil {
		t.Fatalf("signing token for %s: %v", userID, err)
	}

	client := socketsvc.NewClient(socketsvc.Options{
		URL:         wsURL(ts),
		AuthToken:   token,
		Logger:      logsvc.NewConsoleLoggerMock(),
		MaxInterval: 100 * time.Millisecond,
	})
	sess, err := session.New(token, session.Options{
		Conf:     &conf,
		Socket:   client,
		Logger:   logsvc.NewConsoleLoggerMock(),
		Resolver: pairResolver{userID: userID},
	})
	if err != nil {
		t.Fatalf("creating session for %s: %v", userID, err)
	}
	t.Cleanup(func() { sess.Teardown() })

	sess.Connect()
	assert.Eventually(t, sess.Connected, 2*time.Second, 10*time.Millisecond,
		"%s never connected", userID)
	return sess
}

// settle gives in-flight frames on every connection time to be dispatched.
func settle() { time.Sleep(200 * time.Millisecond) }

func transcript(log *chat.Log, chatID string) string {
	var b strings.Builder
	for _, m := range log.Messages(chatID) {
		fmt.Fprintf(&b, "%s: %s\n", m.SenderID, m.Content)
	}
	return b.String()
}

func assertTranscript(t *testing.T, log *chat.Log, chatID, want string) {
	t.Helper()
	got := transcript(log, chatID)
	if got == want {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("diffing transcripts: %v", err)
	}
	t.Errorf("transcript mismatch for %s:\n%s", chatID, diff)
}
