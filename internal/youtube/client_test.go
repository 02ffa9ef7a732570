package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"
)

func fakeSearchServer(t *testing.T, gotRegion *string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotRegion = r.URL.Query().Get("regionCode")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":{"channelId":"UCfake1"}}]}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func fakeClient(t *testing.T, endpoint, regionCode string) *Client {
	t.Helper()
	svc, err := youtubeapi.NewService(context.Background(),
		option.WithEndpoint(endpoint),
		option.WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return &Client{svc: svc, pageSize: 5, regionCode: regionCode}
}

func TestSearchChannelIDs_AppliesRegionCode(t *testing.T) {
	var gotRegion string
	ts := fakeSearchServer(t, &gotRegion)

	c := fakeClient(t, ts.URL, "CA")
	ids, err := c.SearchChannelIDs(context.Background(), "fitness", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 1 || ids[0] != "UCfake1" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if gotRegion != "CA" {
		t.Fatalf("regionCode param = %q, want CA", gotRegion)
	}
}

func TestSearchChannelIDs_NoRegionWhenUnset(t *testing.T) {
	var gotRegion string
	ts := fakeSearchServer(t, &gotRegion)

	c := fakeClient(t, ts.URL, "")
	if _, err := c.SearchChannelIDs(context.Background(), "fitness", 5); err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotRegion != "" {
		t.Fatalf("regionCode param = %q, want empty", gotRegion)
	}
}
