package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const listingBody = `{"data": [
	{"id": 10, "name": "Alpha", "card_images": [{"id": 10, "image_url": "https://img.example/10.jpg"}]},
	{"id": 20, "name": "Beta", "card_images": [{"id": 20, "image_url": "https://img.example/20.jpg"}]}
]}`

func TestFetchListingParsesEntitiesAndSignsRawBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v7/cardinfo.php" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, listingBody)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 7)

	first, err := client.FetchListing(context.Background())
	if err != nil {
		t.Fatalf("FetchListing returned error: %v", err)
	}
	if len(first.Entities) != 2 {
		t.Fatalf("parsed %d entities, want 2", len(first.Entities))
	}
	if first.Entities[0].Name != "Alpha" || first.Entities[1].Name != "Beta" {
		t.Fatalf("unexpected entity names: %q %q", first.Entities[0].Name, first.Entities[1].Name)
	}

	second, err := client.FetchListing(context.Background())
	if err != nil {
		t.Fatalf("second FetchListing returned error: %v", err)
	}
	if !first.Signature.Equal(second.Signature) {
		t.Fatalf("listing signature should be stable for identical bodies")
	}
}

func TestFetchListingRejectsEmptyListing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, 7).FetchListing(context.Background()); err == nil {
		t.Fatalf("expected error for empty listing")
	}
}

func TestFetchFailsOnNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, 7).Fetch(context.Background(), srv.URL+"/image.jpg"); err == nil {
		t.Fatalf("expected error for 503 response")
	}
}

func TestFetchRangeHonoredAndUnhonored(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/partial":
			if r.Header.Get("Range") != "bytes=0-7" {
				t.Errorf("unexpected Range header %q", r.Header.Get("Range"))
			}
			w.WriteHeader(http.StatusPartialContent)
			fmt.Fprint(w, "12345678")
		case "/full":
			// Honors the request by returning the whole body with 200.
			fmt.Fprint(w, "1234567890")
		default:
			http.Error(w, "range not supported", http.StatusRequestedRangeNotSatisfiable)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 7)

	body, ok, err := client.FetchRange(context.Background(), srv.URL+"/partial", 8)
	if err != nil || !ok {
		t.Fatalf("FetchRange(partial) = ok=%v err=%v", ok, err)
	}
	if string(body) != "12345678" {
		t.Fatalf("unexpected partial body %q", body)
	}

	body, ok, err = client.FetchRange(context.Background(), srv.URL+"/full", 8)
	if err != nil || !ok {
		t.Fatalf("FetchRange(full) = ok=%v err=%v", ok, err)
	}
	if string(body) != "1234567890" {
		t.Fatalf("unexpected full body %q", body)
	}

	_, ok, err = client.FetchRange(context.Background(), srv.URL+"/unsupported", 8)
	if err != nil {
		t.Fatalf("FetchRange(unsupported) returned error: %v", err)
	}
	if ok {
		t.Fatalf("416 response should report range as unsupported")
	}
}
