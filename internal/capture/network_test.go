package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func sendRequest(n *NetworkLog, id, url string, typ network.ResourceType) {
	n.OnRequestWillBeSent(&network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{URL: url, Method: "GET"},
		Type:      typ,
	})
}

func respond(n *NetworkLog, id, url string, status int64, mime string) {
	n.OnResponseReceived(&network.EventResponseReceived{
		RequestID: network.RequestID(id),
		Type:      network.ResourceTypeFetch,
		Response:  &network.Response{URL: url, Status: status, StatusText: "status", MimeType: mime},
	})
}

func TestNetworkLogExcludesSuccessfulRequests(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()

	sendRequest(n, "1", "http://example.test/ok", network.ResourceTypeFetch)
	respond(n, "1", "http://example.test/ok", 200, "application/json")
	sendRequest(n, "2", "http://example.test/moved", network.ResourceTypeDocument)
	respond(n, "2", "http://example.test/moved", 304, "text/html")

	fetchCalled := false
	fetch := func(network.RequestID) ([]byte, error) {
		fetchCalled = true
		return []byte("ok"), nil
	}
	n.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "1"}, fetch)
	n.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "2"}, fetch)

	if issues := n.Issues(time.Second); len(issues) != 0 {
		t.Fatalf("issues = %+v; want none", issues)
	}
	if fetchCalled {
		t.Fatalf("body fetched for a successful request")
	}
	if n.Inflight() != 0 {
		t.Fatalf("Inflight() = %d, want 0", n.Inflight())
	}
}

func TestNetworkLogRecordsErrorStatusWithBody(t *testing.T) {
	n := NewNetworkLog(400, 5)
	defer n.Close()

	sendRequest(n, "7", "http://example.test/api/tiles", network.ResourceTypeXHR)
	respond(n, "7", "http://example.test/api/tiles", 503, "application/json")
	n.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "7"}, func(id network.RequestID) ([]byte, error) {
		if id != "7" {
			t.Errorf("fetch id = %q, want 7", id)
		}
		return []byte(`{"error":"down"}`), nil
	})

	issues := n.Issues(time.Second)
	if len(issues) != 1 {
		t.Fatalf("len(issues) = %d, want 1", len(issues))
	}
	got := issues[0]
	if got.URL != "http://example.test/api/tiles" || got.Status != 503 || got.Method != "GET" {
		t.Fatalf("issue = %+v", got)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.ContentType)
	}
	if got.Body != `{"err` || !got.BodyTruncated || got.BodySize != 16 || got.BodySHA256 == "" {
		t.Fatalf("body fields = %q truncated=%v size=%d sha=%q", got.Body, got.BodyTruncated, got.BodySize, got.BodySHA256)
	}
}

func TestNetworkLogToleratesBodyReadFailure(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()

	sendRequest(n, "9", "http://example.test/missing", network.ResourceTypeImage)
	respond(n, "9", "http://example.test/missing", 404, "text/plain")
	n.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "9"}, func(network.RequestID) ([]byte, error) {
		return nil, errors.New("No resource with given identifier found")
	})

	issues := n.Issues(time.Second)
	if len(issues) != 1 || issues[0].Status != 404 || issues[0].Body != "" {
		t.Fatalf("issues = %+v", issues)
	}
}

func TestNetworkLogRecordsLoadingFailures(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()

	sendRequest(n, "a", "http://unreachable.test/script.js", network.ResourceTypeScript)
	sendRequest(n, "b", "http://example.test/ad.js", network.ResourceTypeScript)
	n.OnLoadingFailed(&network.EventLoadingFailed{RequestID: "a", ErrorText: "net::ERR_NAME_NOT_RESOLVED"})
	n.OnLoadingFailed(&network.EventLoadingFailed{
		RequestID:     "b",
		ErrorText:     "net::ERR_BLOCKED_BY_CLIENT",
		BlockedReason: network.BlockedReasonInspector,
		Canceled:      true,
	})
	n.OnLoadingFailed(&network.EventLoadingFailed{RequestID: "unknown", ErrorText: "net::ERR_FAILED"})

	issues := n.Issues(time.Second)
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	if issues[0].URL != "http://unreachable.test/script.js" || issues[0].Failure != "net::ERR_NAME_NOT_RESOLVED" {
		t.Fatalf("issues[0] = %+v", issues[0])
	}
	if issues[0].ResourceType != "Script" {
		t.Fatalf("resource type = %q", issues[0].ResourceType)
	}
	if !strings.Contains(issues[1].Failure, "blocked: inspector") || !strings.Contains(issues[1].Failure, "canceled") {
		t.Fatalf("issues[1].Failure = %q", issues[1].Failure)
	}
}

func TestNetworkLogSkipsDataURLs(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()

	sendRequest(n, "d", "data:image/png;base64,AAAA", network.ResourceTypeImage)
	if n.Inflight() != 0 {
		t.Fatalf("Inflight() = %d, want 0", n.Inflight())
	}
}

func TestNetworkLogWaitIdle(t *testing.T) {
	t.Run("returns_when_quiet", func(t *testing.T) {
		n := NewNetworkLog(400, 1024)
		defer n.Close()
		sendRequest(n, "1", "http://example.test/poll", network.ResourceTypeEventSource)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.WaitIdle(ctx, 20*time.Millisecond, 1); err != nil {
			t.Fatalf("WaitIdle() = %v; want nil", err)
		}
	})

	t.Run("bounded_by_context", func(t *testing.T) {
		n := NewNetworkLog(400, 1024)
		defer n.Close()
		sendRequest(n, "1", "http://example.test/slow", network.ResourceTypeFetch)

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		err := n.WaitIdle(ctx, 10*time.Millisecond, 0)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("WaitIdle() = %v; want deadline exceeded", err)
		}
	})
}

func TestNetworkLogCleanupStale(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()
	n.staleAfter = time.Millisecond

	sendRequest(n, "1", "http://example.test/hang", network.ResourceTypeFetch)
	time.Sleep(5 * time.Millisecond)
	n.cleanupStale()

	if n.Inflight() != 0 {
		t.Fatalf("Inflight() = %d after cleanup, want 0", n.Inflight())
	}
}

func TestNetworkLogSkipsBodyReadsAfterIssues(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()

	sendRequest(n, "1", "http://example.test/late", network.ResourceTypeXHR)
	respond(n, "1", "http://example.test/late", 500, "text/plain")
	if issues := n.Issues(time.Second); len(issues) != 1 {
		t.Fatalf("len(issues) = %d, want 1", len(issues))
	}

	fetchCalled := false
	n.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "1"}, func(network.RequestID) ([]byte, error) {
		fetchCalled = true
		return []byte("late body"), nil
	})
	if fetchCalled {
		t.Fatal("body fetched after Issues")
	}
	if issues := n.Issues(time.Second); len(issues) != 1 || issues[0].Body != "" {
		t.Fatalf("issues = %+v; want one issue without body", issues)
	}
}

func TestNetworkLogIssuesDuringConcurrentFinishes(t *testing.T) {
	n := NewNetworkLog(400, 1024)
	defer n.Close()

	fetch := func(network.RequestID) ([]byte, error) {
		time.Sleep(time.Millisecond)
		return []byte("err"), nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("r%d", i)
			url := "http://example.test/" + id
			sendRequest(n, id, url, network.ResourceTypeXHR)
			respond(n, id, url, 500, "text/plain")
			n.OnLoadingFinished(&network.EventLoadingFinished{RequestID: network.RequestID(id)}, fetch)
		}
	}()
	for i := 0; i < 50; i++ {
		n.Issues(time.Millisecond)
	}
	<-done

	if issues := n.Issues(time.Second); len(issues) != 200 {
		t.Fatalf("len(issues) = %d, want 200", len(issues))
	}
}
