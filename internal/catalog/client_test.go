package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/iotail/kennel-core/internal/infrastructure/config"
)

func newTestClient(url string) *Client {
	return New(config.CatalogConfig{
		BaseURL:  url,
		Token:    "test-token",
		Timeout:  5,
		RetryMax: 3,
	})
}

func TestSizeFits(t *testing.T) {
	tests := []struct {
		kennel KennelSize
		dog    KennelSize
		want   bool
	}{
		{SizeSmall, SizeSmall, true},
		{SizeMedium, SizeSmall, true},
		{SizeLarge, SizeLarge, true},
		{SizeSmall, SizeMedium, false},
		{SizeMedium, SizeLarge, false},
		{KennelSize("giant"), SizeSmall, false},
		{SizeLarge, KennelSize(""), false},
	}
	for _, tt := range tests {
		if got := tt.kennel.Fits(tt.dog); got != tt.want {
			t.Errorf("Fits(%q, %q) = %v, want %v", tt.kennel, tt.dog, got, tt.want)
		}
	}
}

func TestStoresSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]Store{{StoreID: "store1", Kennels: []Kennel{{ID: 1, Size: SizeMedium}}}})
	}))
	defer srv.Close()

	stores, err := newTestClient(srv.URL).Stores(context.Background())
	if err != nil {
		t.Fatalf("Stores() error = %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(stores) != 1 || stores[0].Kennels[0].Size != SizeMedium {
		t.Errorf("unexpected stores: %+v", stores)
	}
}

func TestGetRetriesServerFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]Breed{{BreedID: "b1", MaxAmbientTemperature: 28}})
	}))
	defer srv.Close()

	breeds, err := newTestClient(srv.URL).Breeds(context.Background())
	if err != nil {
		t.Fatalf("Breeds() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(breeds) != 1 {
		t.Errorf("breeds = %+v, want one entry", breeds)
	}
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).User(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("User() error = %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 404)", calls.Load())
	}
}

func TestBookNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Book(context.Background(), "store1", 2)
	if !errors.Is(err, ErrService) {
		t.Fatalf("Book() error = %v, want ErrService", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1", calls.Load())
	}
}

func TestBookSendsMutationBody(t *testing.T) {
	var got kennelMutation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" {
			t.Errorf("path = %q, want /book", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).Book(context.Background(), "store1", 7); err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if got.StoreID != "store1" || got.KennelID != 7 {
		t.Errorf("body = %+v, want store1/7", got)
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Users(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Users() error = %v, want ErrUnauthorized", err)
	}
}
