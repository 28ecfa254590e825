// Package main provides the Spotify authorization tool. It obtains the refresh token
// the server needs for user-scoped catalog calls (saved tracks, saved albums, top tracks).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/vibebox/internal/infra/logger"
)

var (
	app          = kingpin.New("vibebox-auth", "Spotify authorization tool for vibebox")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	timeout      = app.Flag("timeout", "How long to wait for authorization").Default("5m").Duration()
)

type callbackResult struct {
	token *oauth2.Token
	err   error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	token, err := authorize()
	if err != nil {
		zlog.Fatal().Msgf("Authorization failed: %v", err)
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Add this to your server.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", token.RefreshToken)
}

func authorize() (*oauth2.Token, error) {
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopeUserLibraryRead, spotifyauth.ScopeUserTopRead),
	)
	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.Handle("GET /callback", callbackHandler(auth, state, results))
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zlog.Warn().Msgf("Failed to shutdown callback server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize vibebox:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(state))
	fmt.Println("")
	zlog.Info().Msgf("Waiting for authorization: redirect_uri=%s timeout=%s", redirectURI, *timeout)

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		if res.token.RefreshToken == "" {
			return nil, errors.New("spotify returned no refresh token")
		}
		return res.token, nil
	case err := <-serverErrCh:
		return nil, errors.Wrap(err, "callback server failed")
	case <-time.After(*timeout):
		return nil, errors.Newf("no authorization received within %s", *timeout)
	}
}

// callbackHandler completes the authorization code exchange. Only the first
// callback is reported; later hits are answered but ignored.
func callbackHandler(auth *spotifyauth.Authenticator, state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("Callback state mismatch: got=%s", st)
			return
		}

		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			report(results, callbackResult{err: errors.Wrap(err, "token exchange failed")})
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>vibebox - Authorization Complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh;">
    <h1>Authorization Complete</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`)
		report(results, callbackResult{token: token})
	})
}

func report(results chan<- callbackResult, res callbackResult) {
	select {
	case results <- res:
	default:
	}
}
