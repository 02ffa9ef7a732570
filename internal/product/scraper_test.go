package product

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title</title>
  <meta property="og:title" content="Trail Running Shoes" />
  <meta property="og:description" content="Lightweight shoes for rough terrain." />
  <meta property="og:image" content="https://cdn.example.com/shoe.jpg" />
  <meta property="product:price:amount" content="129.99" />
  <meta name="keywords" content="trail running, running shoes, outdoor gear" />
</head>
<body><h1>Shop</h1></body>
</html>`

func TestScraper_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	info, err := NewScraper(srv.Client()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Title != "Trail Running Shoes" {
		t.Errorf("title: got %q", info.Title)
	}
	if info.Description != "Lightweight shoes for rough terrain." {
		t.Errorf("description: got %q", info.Description)
	}
	if info.ImageURL != "https://cdn.example.com/shoe.jpg" {
		t.Errorf("image: got %q", info.ImageURL)
	}
	if info.Price != 129.99 {
		t.Errorf("price: got %v", info.Price)
	}
	if info.Keywords != "trail running, running shoes, outdoor gear" {
		t.Errorf("keywords: got %q", info.Keywords)
	}
}

func TestScraper_TitleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Plain Title</title></head><body></body></html>`))
	}))
	defer srv.Close()

	info, err := NewScraper(srv.Client()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Title != "Plain Title" {
		t.Errorf("expected title fallback, got %q", info.Title)
	}
}

func TestScraper_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewScraper(srv.Client()).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 page")
	}
}
