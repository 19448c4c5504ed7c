package streaming

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/exp/slog"
	"golang.org/x/oauth2"

	"github.com/campbelljlowman/auxparty-api/constants"
	"github.com/campbelljlowman/auxparty-api/model"
)

const spotifyTrackURIPrefix = "spotify:track:"

// SpotifyWrapper implements StreamingService for Spotify.
type SpotifyWrapper struct {
	client *spotify.Client
}

type SpotifyCredentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// NewSpotifyClient builds a client whose token source refreshes the access token when a refresh token is present.
func NewSpotifyClient(ctx context.Context, credentials SpotifyCredentials) *SpotifyWrapper {
	token := &oauth2.Token{
		AccessToken:  credentials.AccessToken,
		RefreshToken: credentials.RefreshToken,
		TokenType:    "Bearer",
	}
	if credentials.RefreshToken != "" {
		// Unknown expiry, so force a refresh on first use.
		token.Expiry = time.Now()
	}

	authenticator := spotifyauth.New(
		spotifyauth.WithClientID(credentials.ClientID),
		spotifyauth.WithClientSecret(credentials.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopePlaylistReadPrivate,
		),
	)
	httpClient := authenticator.Client(ctx, token)
	return &SpotifyWrapper{client: spotify.New(httpClient)}
}

func (s *SpotifyWrapper) Play(ctx context.Context, trackID string, opts PlayOptions) error {
	playOptions := &spotify.PlayOptions{
		URIs:       []spotify.URI{spotify.URI(toTrackURI(trackID))},
		PositionMs: opts.PositionMs,
	}
	if opts.DeviceID != "" {
		deviceID := spotify.ID(opts.DeviceID)
		playOptions.DeviceID = &deviceID
	}
	return s.client.PlayOpt(ctx, playOptions)
}

func (s *SpotifyWrapper) Resume(ctx context.Context) error {
	return s.client.Play(ctx)
}

func (s *SpotifyWrapper) Pause(ctx context.Context) error {
	return s.client.Pause(ctx)
}

func (s *SpotifyWrapper) Status(ctx context.Context) (*PlaybackStatus, error) {
	state, err := s.client.PlayerState(ctx)
	if err != nil {
		return nil, err
	}

	status := &PlaybackStatus{}
	if state == nil {
		return status, nil
	}

	status.Device = spotifyDeviceToDevice(state.Device)
	if state.Item == nil {
		return status, nil
	}

	status.IsPlaying = state.Playing
	status.CurrentTrackID = string(state.Item.URI)
	status.ProgressMs = state.Progress
	status.DurationMs = state.Item.Duration
	return status, nil
}

func (s *SpotifyWrapper) ListDevices(ctx context.Context) ([]Device, error) {
	spotifyDevices, err := s.client.PlayerDevices(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(spotifyDevices))
	for _, d := range spotifyDevices {
		devices = append(devices, *spotifyDeviceToDevice(d))
	}
	return devices, nil
}

func (s *SpotifyWrapper) GetTrack(ctx context.Context, trackID string) (*model.Track, error) {
	id := toTrackID(trackID)
	if id == "" {
		return nil, ErrTrackNotFound
	}

	fullTrack, err := s.client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("getting track %s: %w", id, err)
	}
	track := SpotifyFullTrackToTrack(fullTrack)
	return &track, nil
}

func (s *SpotifyWrapper) GetPlaylistPage(ctx context.Context, playlistID string, offset int) ([]model.Track, error) {
	page, err := s.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(constants.PlaylistPageLimit), spotify.Offset(offset))
	if err != nil {
		return nil, fmt.Errorf("getting playlist %s: %w", playlistID, err)
	}

	tracks := make([]model.Track, 0, len(page.Items))
	for _, item := range page.Items {
		// Episodes and local files have no track.
		if item.Track.Track == nil {
			continue
		}
		tracks = append(tracks, SpotifyFullTrackToTrack(item.Track.Track))
	}
	slog.Debug("Fetched fallback playlist page", "playlist", playlistID, "tracks", len(tracks))
	return tracks, nil
}

func (s *SpotifyWrapper) Search(ctx context.Context, query string) ([]model.Track, error) {
	result, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(constants.SearchResultLimit))
	if err != nil {
		return nil, err
	}
	if result.Tracks == nil {
		return []model.Track{}, nil
	}

	tracks := make([]model.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, SpotifyFullTrackToTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

func SpotifyFullTrackToTrack(track *spotify.FullTrack) model.Track {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	images := make([]model.Image, 0, len(track.Album.Images))
	for _, image := range track.Album.Images {
		images = append(images, model.Image{URL: image.URL})
	}

	return model.Track{
		TrackID: string(track.URI),
		Title:   track.Name,
		Artists: artists,
		Album: model.Album{
			Name:   track.Album.Name,
			Images: images,
		},
		DurationMs: track.Duration,
	}
}

func spotifyDeviceToDevice(d spotify.PlayerDevice) *Device {
	return &Device{
		ID:     string(d.ID),
		Name:   d.Name,
		Active: d.Active,
	}
}

// toTrackID accepts either a spotify:track: URI or a bare ID.
func toTrackID(trackID string) string {
	trackID = strings.TrimSpace(trackID)
	if strings.HasPrefix(trackID, spotifyTrackURIPrefix) {
		return strings.TrimPrefix(trackID, spotifyTrackURIPrefix)
	}
	if strings.Contains(trackID, ":") {
		return ""
	}
	return trackID
}

func toTrackURI(trackID string) string {
	id := toTrackID(trackID)
	if id == "" {
		return trackID
	}
	return spotifyTrackURIPrefix + id
}
