package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeToken(t *testing.T, path string, tok storedToken) {
	t.Helper()
	data, err := json.Marshal(tok)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func freshToken() storedToken {
	return storedToken{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ClientID:     "cid",
		ClientSecret: "secret",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestCreateEvent_BodyAndLink(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody eventBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"htmlLink": "https://calendar.google.com/event?eid=abc"}`))
	}))
	t.Cleanup(srv.Close)

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	writeToken(t, tokenPath, freshToken())

	c := NewClient(Config{TokenPath: tokenPath, Timezone: "Europe/Moscow"})
	c.apiBase = srv.URL

	start := time.Date(2026, 9, 4, 8, 15, 0, 0, time.Local)
	link, err := c.CreateEvent(context.Background(), "Математика", "№ 312", start)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if link != "https://calendar.google.com/event?eid=abc" {
		t.Fatalf("link = %q", link)
	}
	if gotPath != "/calendars/primary/events" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer access-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody.Summary != "📚 Математика: № 312" {
		t.Fatalf("summary = %q", gotBody.Summary)
	}
	if gotBody.ColorID != "9" {
		t.Fatalf("color = %q", gotBody.ColorID)
	}
	if gotBody.Start.TimeZone != "Europe/Moscow" {
		t.Fatalf("timezone = %q", gotBody.Start.TimeZone)
	}
	wantEnd := start.Add(45 * time.Minute).Format(time.RFC3339)
	if gotBody.End.DateTime != wantEnd {
		t.Fatalf("end = %q; want %q", gotBody.End.DateTime, wantEnd)
	}
	if gotBody.Reminders.UseDefault {
		t.Fatal("default reminders kept")
	}
	if len(gotBody.Reminders.Overrides) != 2 ||
		gotBody.Reminders.Overrides[0].Minutes != 60 ||
		gotBody.Reminders.Overrides[1].Minutes != 1440 {
		t.Fatalf("reminders = %+v", gotBody.Reminders.Overrides)
	}
}

func TestCreateEvent_MissingTokenFile(t *testing.T) {
	c := NewClient(Config{TokenPath: filepath.Join(t.TempDir(), "absent.json")})

	_, err := c.CreateEvent(context.Background(), "Физика", "x", time.Now())
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v; want ErrNotAuthorized", err)
	}
}

func TestCreateEvent_UnauthorizedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	writeToken(t, tokenPath, freshToken())
	c := NewClient(Config{TokenPath: tokenPath})
	c.apiBase = srv.URL

	_, err := c.CreateEvent(context.Background(), "Физика", "x", time.Now())
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v; want ErrNotAuthorized", err)
	}
}

func TestAccessToken_RefreshesExpiredAndPersists(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		_, _ = w.Write([]byte(`{"access_token": "access-2", "expires_in": 3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	tok := freshToken()
	tok.Expiry = time.Now().Add(-time.Hour)
	tok.TokenURI = tokenSrv.URL
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	writeToken(t, tokenPath, tok)

	c := NewClient(Config{TokenPath: tokenPath})
	got, err := c.accessToken(context.Background())
	if err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if got != "access-2" {
		t.Fatalf("token = %q; want access-2", got)
	}

	// The refreshed token is written back so restarts reuse it.
	saved, err := loadToken(tokenPath)
	if err != nil {
		t.Fatalf("loadToken: %v", err)
	}
	if saved.AccessToken != "access-2" || !saved.Expiry.After(time.Now()) {
		t.Fatalf("saved token = %+v", saved)
	}
	if saved.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token lost: %+v", saved)
	}
}

func TestAccessToken_RefreshWithoutCredentials(t *testing.T) {
	tok := storedToken{AccessToken: "stale", Expiry: time.Now().Add(-time.Hour)}
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	writeToken(t, tokenPath, tok)

	c := NewClient(Config{TokenPath: tokenPath})
	if _, err := c.accessToken(context.Background()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v; want ErrNotAuthorized", err)
	}
}

func TestStoredToken_Valid(t *testing.T) {
	tok := storedToken{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}
	if !tok.valid() {
		t.Fatal("fresh token invalid")
	}
	// A token within the one-minute refresh margin counts as expired.
	tok.Expiry = time.Now().Add(30 * time.Second)
	if tok.valid() {
		t.Fatal("near-expiry token accepted")
	}
	tok = storedToken{Expiry: time.Now().Add(time.Hour)}
	if tok.valid() {
		t.Fatal("empty access token accepted")
	}
}
