package auth

import (
	"net/http/httptest"
	"testing"
)

func TestTokenIdentity(t *testing.T) {
	id := NewTokenIdentity(map[string]string{"tok-alice": "alice", "": "ghost"})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer tok-alice")
	user, err := id.CurrentUser(r)
	if err != nil || user != "alice" {
		t.Errorf("CurrentUser = %q, %v", user, err)
	}

	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic tok-alice",
		"unknown token": "Bearer nope",
		"empty bearer":  "Bearer ",
	}
	for name, header := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if _, err := id.CurrentUser(r); err != ErrUnauthenticated {
			t.Errorf("%s: err = %v, want ErrUnauthenticated", name, err)
		}
	}
}

func TestStaticIdentity(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if user, err := (StaticIdentity{User: "dev"}).CurrentUser(r); err != nil || user != "dev" {
		t.Errorf("CurrentUser = %q, %v", user, err)
	}
	if _, err := (StaticIdentity{}).CurrentUser(r); err != ErrUnauthenticated {
		t.Errorf("empty user: err = %v", err)
	}
}
