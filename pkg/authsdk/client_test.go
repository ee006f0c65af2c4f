package authsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/auth/login", r.URL.Path)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "a@b.com", body["email"])
			require.Equal(t, "x", body["password"])

			json.NewEncoder(w).Encode(map[string]any{
				"token":        "t1",
				"refreshToken": "r1",
				"user":         map[string]any{"id": 1, "username": "a", "role": "student"},
			})
		}))
		defer srv.Close()

		resp, err := authsdk.NewClient(srv.URL, nil).Login(context.Background(), "a@b.com", "x")
		require.NoError(t, err)
		require.Equal(t, "t1", resp.Token)
		require.Equal(t, "r1", resp.RefreshToken)
		require.Equal(t, int64(1), resp.User.ID)
		require.Equal(t, authsdk.RoleStudent, resp.User.Role)
	})

	t.Run("rejected credentials classify as KindCredentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"code": "BAD_LOGIN", "message": "bad credentials"})
		}))
		defer srv.Close()

		_, err := authsdk.NewClient(srv.URL, nil).Login(context.Background(), "a@b.com", "wrong")
		require.Error(t, err)
		require.Equal(t, authsdk.KindCredentials, authsdk.KindOf(err))
	})
}

func TestRefreshTokenClassification(t *testing.T) {
	t.Run("server-confirmed invalid refresh token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/auth/refresh-token", r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "INVALID_REFRESH_TOKEN", "message": "refresh token revoked"},
			})
		}))
		defer srv.Close()

		_, err := authsdk.NewClient(srv.URL, nil).RefreshToken(context.Background(), "r1")
		require.Equal(t, authsdk.KindRefreshInvalid, authsdk.KindOf(err))
	})

	t.Run("generic 401 is token expiry, not refresh invalidation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
		}))
		defer srv.Close()

		_, err := authsdk.NewClient(srv.URL, nil).RefreshToken(context.Background(), "r1")
		require.Equal(t, authsdk.KindTokenExpired, authsdk.KindOf(err))
	})

	t.Run("transport failure is KindNetwork", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // connection refused from here on

		_, err := authsdk.NewClient(srv.URL, nil).RefreshToken(context.Background(), "r1")
		require.Equal(t, authsdk.KindNetwork, authsdk.KindOf(err))

		var ae *authsdk.AuthError
		require.ErrorAs(t, err, &ae)
		require.True(t, ae.Transient())
		require.Zero(t, ae.Status)
	})

	t.Run("5xx is KindServer and transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := authsdk.NewClient(srv.URL, nil).RefreshToken(context.Background(), "r1")
		require.Equal(t, authsdk.KindServer, authsdk.KindOf(err))

		var ae *authsdk.AuthError
		require.ErrorAs(t, err, &ae)
		require.True(t, ae.Transient())
	})
}

func TestProfile(t *testing.T) {
	t.Run("sends bearer token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"id": 7, "username": "darcey", "role": "admin"})
		}))
		defer srv.Close()

		profile, err := authsdk.NewClient(srv.URL, nil).Profile(context.Background(), "t1")
		require.NoError(t, err)
		require.Equal(t, int64(7), profile.ID)
		require.Equal(t, authsdk.RoleAdmin, profile.Role)
	})

	t.Run("403 is KindDenied, distinct from authentication failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"message": "instructors only"})
		}))
		defer srv.Close()

		_, err := authsdk.NewClient(srv.URL, nil).Profile(context.Background(), "t1")
		require.Equal(t, authsdk.KindDenied, authsdk.KindOf(err))
	})
}

func TestGitHubLoginURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/github/login", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("getUrl"))
		require.Equal(t, "login", r.URL.Query().Get("source"))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://github.com/login/oauth/authorize?state=abc"})
	}))
	defer srv.Close()

	u, err := authsdk.NewClient(srv.URL, nil).GitHubLoginURL(context.Background(), "login")
	require.NoError(t, err)
	require.Contains(t, u, "github.com/login/oauth")
}

func TestRequestTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := authsdk.NewClient(srv.URL, nil)
	c.RequestTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Profile(context.Background(), "t1")
	require.Equal(t, authsdk.KindNetwork, authsdk.KindOf(err))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestMarkHandledIsOneShot(t *testing.T) {
	ae := &authsdk.AuthError{Kind: authsdk.KindServer, Message: "boom"}
	require.False(t, ae.Handled())
	require.True(t, ae.MarkHandled())
	require.False(t, ae.MarkHandled())
	require.True(t, ae.Handled())
}
