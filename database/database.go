package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slog"
	"gorm.io/gorm"

	"github.com/campbelljlowman/auxparty-api/model"
	"github.com/campbelljlowman/auxparty-api/session"
)

// PlayedTrack is one track the device accepted.
type PlayedTrack struct {
	gorm.Model
	SessionID string    `gorm:"index" json:"sessionId"`
	TrackID   string    `gorm:"index" json:"trackId"`
	Title     string    `json:"title"`
	Artists   string    `json:"artists"`
	AddedBy   string    `json:"addedBy"`
	StartedAt time.Time `json:"startedAt"`
}

type sessionMetrics struct {
	gorm.Model
	SessionID              string `gorm:"index"`
	StartedAt              time.Time
	EndedAt                time.Time
	NumberOfVotes          int
	NumberOfVoters         int
	NumberOfTracksAdded    int
	NumberOfTracksPlayed   int
	NumberOfAutoplayTracks int
	NumberOfDesyncs        int
}

// PlayHistoryGorm records what was played and how each session went.
type PlayHistoryGorm struct {
	gorm *gorm.DB
}

func NewPlayHistoryGorm(gormDB *gorm.DB) (*PlayHistoryGorm, error) {
	if err := gormDB.AutoMigrate(&PlayedTrack{}, &sessionMetrics{}); err != nil {
		return nil, fmt.Errorf("migrating play history: %w", err)
	}
	return &PlayHistoryGorm{gorm: gormDB}, nil
}

func (p *PlayHistoryGorm) OnTrackStarted(ctx context.Context, sessionID string, entry *model.TrackEntry, startedAt time.Time) {
	playedTrack := PlayedTrack{
		SessionID: sessionID,
		TrackID:   entry.TrackID,
		Title:     entry.Title,
		Artists:   strings.Join(entry.Artists, ", "),
		AddedBy:   entry.AddedBy,
		StartedAt: startedAt,
	}

	if err := p.gorm.WithContext(ctx).Create(&playedTrack).Error; err != nil {
		slog.Warn("Error recording played track", "session_id", sessionID, "track", entry.TrackID, "error", err)
	}
}

// RecentlyPlayed returns up to limit tracks, newest first.
func (p *PlayHistoryGorm) RecentlyPlayed(ctx context.Context, sessionID string, limit int) ([]PlayedTrack, error) {
	var playedTracks []PlayedTrack
	result := p.gorm.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at desc").
		Order("id desc").
		Limit(limit).
		Find(&playedTracks)
	if result.Error != nil {
		return nil, result.Error
	}
	return playedTracks, nil
}

func (p *PlayHistoryGorm) WriteCompletedSessionMetrics(ctx context.Context, metrics session.Metrics) error {
	row := sessionMetrics{
		SessionID:              metrics.SessionID,
		StartedAt:              metrics.StartedAt,
		EndedAt:                metrics.EndedAt,
		NumberOfVotes:          metrics.NumberOfVotes,
		NumberOfVoters:         metrics.NumberOfVoters,
		NumberOfTracksAdded:    metrics.NumberOfTracksAdded,
		NumberOfTracksPlayed:   metrics.NumberOfTracksPlayed,
		NumberOfAutoplayTracks: metrics.NumberOfAutoplayTracks,
		NumberOfDesyncs:        metrics.NumberOfDesyncs,
	}
	return p.gorm.WithContext(ctx).Create(&row).Error
}

func (p *PlayHistoryGorm) GetCompletedSessionMetrics(ctx context.Context) ([]session.Metrics, error) {
	var rows []sessionMetrics
	if err := p.gorm.WithContext(ctx).Order("ended_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}

	completed := make([]session.Metrics, 0, len(rows))
	for _, row := range rows {
		completed = append(completed, session.Metrics{
			SessionID:              row.SessionID,
			StartedAt:              row.StartedAt,
			EndedAt:                row.EndedAt,
			NumberOfVotes:          row.NumberOfVotes,
			NumberOfVoters:         row.NumberOfVoters,
			NumberOfTracksAdded:    row.NumberOfTracksAdded,
			NumberOfTracksPlayed:   row.NumberOfTracksPlayed,
			NumberOfAutoplayTracks: row.NumberOfAutoplayTracks,
			NumberOfDesyncs:        row.NumberOfDesyncs,
		})
	}
	return completed, nil
}
