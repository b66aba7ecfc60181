package services

import (
	"context"
	"database/sql"
	"fmt"

	"uplink/internal/common"
	"uplink/internal/logging"
	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
	"uplink/internal/server/repositories/repomanager"
)

// qualityLadder maps rendition names to their vertical resolution.
var qualityLadder = map[string]int{
	"360p":  360,
	"540p":  540,
	"720p":  720,
	"1080p": 1080,
	"2160p": 2160,
}

const defaultTarget = 720

// PlaybackHint carries the client-reported signals used to pick a rendition.
type PlaybackHint struct {
	Quality         string
	ConnectionSpeed float64 // Mbps, 0 = unknown
	ConnectionType  string  // slow-2g|2g|3g|4g, empty = unknown
	ClientWidth     int     // px, 0 = unknown
}

// PlaybackResult is a resolved stream.
type PlaybackResult struct {
	StreamURL          string   `json:"streamUrl"`
	SelectedQuality    string   `json:"selectedQuality"`
	AvailableQualities []string `json:"availableQualities"`
}

// PlaybackService picks the best available proxy for a client and presigns
// its delivery URL on the edge account.
type PlaybackService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	files       *FileService
	edge        ObjectStore
	cfg         *sc.Config
	logger      logging.Logger
}

func NewPlaybackService(db *sql.DB, rm repomanager.RepositoryManager, files *FileService, edge ObjectStore, cfg *sc.Config, logger logging.Logger) *PlaybackService {
	return &PlaybackService{db: db, repomanager: rm, files: files, edge: edge, cfg: cfg, logger: logger.With("service", "playback")}
}

// Resolve returns a presigned stream URL for the rendition best matching the
// hint. An explicit known quality with an exact proxy match always wins.
// When no proxies exist yet the service claims and starts a transcode and
// reports common.ErrNotReady so the client retries.
func (s *PlaybackService) Resolve(ctx context.Context, fileID string, hint PlaybackHint) (*PlaybackResult, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if len(file.Proxies) == 0 {
		if _, started, err := s.files.StartTranscode(ctx, fileID, nil); err != nil {
			s.logger.Error(ctx, "start transcode from playback", "fileId", fileID, "error", err)
		} else if started {
			s.logger.Info(ctx, "transcode started from playback", "fileId", fileID)
		}
		return nil, fmt.Errorf("%w: no renditions yet", common.ErrNotReady)
	}

	proxy := pickProxy(file.Proxies, hint)

	url, err := s.edge.PresignGet(ctx, proxy.StorageKey, s.cfg.StreamURLValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: presign stream: %v", common.ErrUpstream, err)
	}

	available := make([]string, 0, len(file.Proxies))
	for _, p := range file.Proxies {
		available = append(available, p.Quality)
	}

	return &PlaybackResult{
		StreamURL:          url,
		SelectedQuality:    proxy.Quality,
		AvailableQualities: available,
	}, nil
}

// pickProxy applies the selection rules: exact hint match, then closest
// rendition to the inferred target. Ties break to the first minimum in
// stored order.
func pickProxy(proxies []models.Proxy, hint PlaybackHint) models.Proxy {
	if hint.Quality != "" && hint.Quality != "auto" {
		for _, p := range proxies {
			if p.Quality == hint.Quality {
				return p
			}
		}
	}

	target := targetFromHint(hint)

	best := proxies[0]
	bestDist := qualityDistance(best.Quality, target)
	for _, p := range proxies[1:] {
		if d := qualityDistance(p.Quality, target); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// targetFromHint infers the target resolution from the strongest available
// signal: measured speed, then connection type, then viewport width.
func targetFromHint(hint PlaybackHint) int {
	if hint.ConnectionSpeed > 0 {
		switch {
		case hint.ConnectionSpeed < 1:
			return 360
		case hint.ConnectionSpeed < 2.5:
			return 540
		case hint.ConnectionSpeed < 5:
			return 720
		case hint.ConnectionSpeed < 10:
			return 1080
		default:
			return 2160
		}
	}

	switch hint.ConnectionType {
	case "slow-2g", "2g":
		return 360
	case "3g":
		return 540
	case "4g":
		return 1080
	}

	if hint.ClientWidth > 0 {
		switch {
		case hint.ClientWidth <= 640:
			return 360
		case hint.ClientWidth <= 960:
			return 540
		case hint.ClientWidth <= 1280:
			return 720
		case hint.ClientWidth <= 1920:
			return 1080
		default:
			return 2160
		}
	}

	return defaultTarget
}

func qualityDistance(quality string, target int) int {
	height, ok := qualityLadder[quality]
	if !ok {
		// off-ladder renditions sort behind every known one
		return 1 << 30
	}
	if height > target {
		return height - target
	}
	return target - height
}
