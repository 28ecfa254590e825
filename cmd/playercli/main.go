// Package main provides the player CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/vibebox/internal/api/connect"
	"github.com/osa030/vibebox/internal/app/playback"
)

var (
	app    = kingpin.New("vibebox-playercli", "vibebox player client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Player API token").Envar("PLAYER_TOKEN").String()

	playAlbumCmd   = app.Command("play-album", "Play an album")
	playAlbumID    = playAlbumCmd.Arg("album", "Spotify album ID or URL").Required().String()
	playAlbumStart = playAlbumCmd.Flag("start", "Start index").Default("0").Int()

	playArtistCmd   = app.Command("play-artist", "Play an artist's top tracks")
	playArtistID    = playArtistCmd.Arg("artist", "Spotify artist ID or URL").Required().String()
	playArtistStart = playArtistCmd.Flag("start", "Start index").Default("0").Int()

	playSavedCmd   = app.Command("play-saved", "Play the user's saved tracks")
	playSavedLimit = playSavedCmd.Flag("limit", "Maximum number of tracks").Default("50").Int()
	playSavedStart = playSavedCmd.Flag("start", "Start index").Default("0").Int()

	playTopCmd       = app.Command("play-top", "Play the user's top tracks")
	playTopLimit     = playTopCmd.Flag("limit", "Maximum number of tracks").Default("20").Int()
	playTopTimeRange = playTopCmd.Flag("time-range", "Affinity window").Default("medium_term").Enum("short_term", "medium_term", "long_term")
	playTopStart     = playTopCmd.Flag("start", "Start index").Default("0").Int()

	savedAlbumsCmd   = app.Command("saved-albums", "List the user's saved albums")
	savedAlbumsLimit = savedAlbumsCmd.Flag("limit", "Maximum number of albums").Default("20").Int()

	playTracksCmd   = app.Command("play-tracks", "Play the given tracks")
	playTracksIDs   = playTracksCmd.Arg("track-ids", "Spotify track IDs").Required().Strings()
	playTracksStart = playTracksCmd.Flag("start", "Start index").Default("0").Int()

	searchCmd   = app.Command("search", "Search tracks")
	searchQuery = searchCmd.Arg("query", "Search query").Required().Strings()
	searchLimit = searchCmd.Flag("limit", "Maximum number of results").Default("10").Int()

	nextCmd = app.Command("next", "Play the next track")
	prevCmd = app.Command("prev", "Play the previous track")
	hideCmd = app.Command("hide", "Hide the player and clear the queue")

	progressCmd      = app.Command("progress", "Report playback progress")
	progressCurrent  = progressCmd.Arg("current", "Current position in seconds").Required().Float64()
	progressDuration = progressCmd.Arg("duration", "Track duration in seconds (optional)").Float64()

	statusCmd = app.Command("status", "Show the playback state")
	watchCmd  = app.Command("watch", "Subscribe to state notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx := context.Background()

	var (
		res *apiconnect.StateResponse
		err error
	)
	switch command {
	case playAlbumCmd.FullCommand():
		res, err = client.PlayAlbum(ctx, &apiconnect.PlayAlbumRequest{AlbumID: *playAlbumID, StartIndex: *playAlbumStart})
	case playArtistCmd.FullCommand():
		res, err = client.PlayArtistTopTracks(ctx, &apiconnect.PlayArtistTopTracksRequest{ArtistID: *playArtistID, StartIndex: *playArtistStart})
	case playSavedCmd.FullCommand():
		res, err = client.PlaySavedTracks(ctx, &apiconnect.PlaySavedTracksRequest{Limit: *playSavedLimit, StartIndex: *playSavedStart})
	case playTopCmd.FullCommand():
		res, err = client.PlayTopTracks(ctx, &apiconnect.PlayTopTracksRequest{
			Limit:      *playTopLimit,
			TimeRange:  *playTopTimeRange,
			StartIndex: *playTopStart,
		})
	case savedAlbumsCmd.FullCommand():
		savedAlbums(ctx, client, *savedAlbumsLimit)
		return
	case playTracksCmd.FullCommand():
		res, err = client.PlayTracks(ctx, &apiconnect.PlayTracksRequest{TrackIDs: *playTracksIDs, StartIndex: *playTracksStart})
	case searchCmd.FullCommand():
		search(ctx, client, strings.Join(*searchQuery, " "), *searchLimit)
		return
	case nextCmd.FullCommand():
		res, err = client.PlayNext(ctx)
	case prevCmd.FullCommand():
		res, err = client.PlayPrevious(ctx)
	case hideCmd.FullCommand():
		res, err = client.HidePlayer(ctx)
	case progressCmd.FullCommand():
		res, err = client.SetTrackProgress(ctx, &apiconnect.SetTrackProgressRequest{
			CurrentTime: *progressCurrent,
			Duration:    *progressDuration,
		})
	case statusCmd.FullCommand():
		res, err = client.GetState(ctx)
	case watchCmd.FullCommand():
		watch(ctx, client)
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printSnapshot(res.Snapshot)
}

func search(ctx context.Context, client *apiconnect.Client, query string, limit int) {
	res, err := client.Search(ctx, &apiconnect.SearchRequest{Query: query, Limit: limit})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(res.Tracks) == 0 {
		fmt.Println("No tracks found")
		return
	}
	for i, t := range res.Tracks {
		fmt.Printf("%2d. %s - %s (%s) [%s]\n", i+1, t.ArtistLine(), t.Name, formatDuration(t.Duration), t.ID)
	}
}

func savedAlbums(ctx context.Context, client *apiconnect.Client, limit int) {
	res, err := client.ListSavedAlbums(ctx, &apiconnect.ListSavedAlbumsRequest{Limit: limit})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(res.Albums) == 0 {
		fmt.Println("No saved albums")
		return
	}
	for i, a := range res.Albums {
		fmt.Printf("%2d. %s - %s (%s) [%s]\n", i+1, a.ArtistLine(), a.Name, a.ReleaseDate, a.ID)
	}
	fmt.Println("\nPlay one with: play-album <id>")
}

func watch(ctx context.Context, client *apiconnect.Client) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stream, err := client.SubscribeState(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Println("Subscribed to state notifications. Press Ctrl+C to exit.")

	for stream.Receive() {
		n := stream.Msg()
		fmt.Printf("\n[Sequence: %d] === %s ===\n", n.SequenceNo, strings.ToUpper(n.Event))
		if n.TrackID != "" {
			fmt.Printf("  Track ID: %s\n", n.TrackID)
		}
		if n.Error != "" {
			fmt.Printf("  Error: %s\n", n.Error)
		}
		printSnapshot(n.Snapshot)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func formatState(state playback.State) string {
	switch state {
	case playback.StateHidden:
		return "⏹  Hidden"
	case playback.StateLoading:
		return "⏳ Loading"
	case playback.StateReady:
		return "▶️  Ready"
	case playback.StateUnplayable:
		return "⚠️  Unplayable"
	default:
		return "❓ Unknown"
	}
}

func printSnapshot(s playback.Snapshot) {
	fmt.Printf("State: %s\n", formatState(s.State))
	if !s.Visible {
		return
	}

	if s.ActiveTrack != nil {
		t := s.ActiveTrack
		fmt.Println("\nNow Playing:")
		fmt.Printf("  Track ID: %s\n", t.ID)
		fmt.Printf("  Name: %s\n", t.Name)
		fmt.Printf("  Artists: %s\n", t.ArtistLine())
		fmt.Printf("  Album: %s\n", t.Album.Name)
		if t.Resolved() {
			fmt.Printf("  Audio URL: %s\n", t.AudioURL)
		}
		fmt.Printf("  Progress: %s / %s\n",
			formatSeconds(s.Progress.CurrentTime), formatSeconds(s.Progress.Duration))
	}

	fmt.Printf("\nQueue (%d tracks):\n", len(s.Queue))
	current, hasCurrent := s.Index()
	for i, t := range s.Queue {
		marker := "  "
		if hasCurrent && i == current {
			marker = "▶ "
		}
		status := ""
		if t.Resolved() {
			status = " ✓"
		}
		fmt.Printf("%s%2d. %s - %s (%s)%s\n", marker, i, t.ArtistLine(), t.Name, formatDuration(t.Duration), status)
	}
}

func formatDuration(d time.Duration) string {
	return formatSeconds(d.Seconds())
}

func formatSeconds(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
