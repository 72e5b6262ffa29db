// Package storage persists artifacts in a private notification channel: an
// upload yields a reusable file reference, so later sends never re-upload
// the bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"photobot/internal/domain"
	"photobot/internal/infra"
	"photobot/internal/notify"
)

// ArtifactStore is the binary-variant store consumed by the lifecycle
// components.
type ArtifactStore interface {
	Put(ctx context.Context, data []byte, label string) (domain.ArtifactRef, error)
	Send(ctx context.Context, ref domain.ArtifactRef, chatID int64, caption string) (int64, error)
	Get(ctx context.Context, ref domain.ArtifactRef) ([]byte, error)
}

// ChannelStore implements ArtifactStore on top of the notification channel.
type ChannelStore struct {
	channel   notify.Channel
	channelID int64
	logger    infra.Logger
}

// NewChannelStore constructs a store that uploads into the given channel.
func NewChannelStore(channel notify.Channel, channelID int64, logger infra.Logger) (*ChannelStore, error) {
	if channel == nil {
		return nil, errors.New("storage: channel is required")
	}
	if channelID == 0 {
		return nil, errors.New("storage: channel id is required")
	}
	return &ChannelStore{channel: channel, channelID: channelID, logger: logger}, nil
}

// Put uploads the bytes under a labeled filename and returns the assigned ref.
func (s *ChannelStore) Put(ctx context.Context, data []byte, label string) (domain.ArtifactRef, error) {
	if len(data) == 0 {
		return "", errors.New("storage: refusing to store empty artifact")
	}
	name := sanitizeLabel(label) + ".png"
	sent, err := s.channel.SendDocument(ctx, s.channelID, notify.Document{
		Data:    data,
		Name:    name,
		Caption: label,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", label, err)
	}
	if sent.FileID == "" {
		return "", fmt.Errorf("storage: upload %s: no file reference returned", label)
	}
	s.logger.Debug().Str("label", label).Msg("storage: artifact uploaded")
	return domain.ArtifactRef(sent.FileID), nil
}

// Send delivers a stored artifact to a destination chat by reference.
func (s *ChannelStore) Send(ctx context.Context, ref domain.ArtifactRef, chatID int64, caption string) (int64, error) {
	if ref == "" {
		return 0, errors.New("storage: empty artifact ref")
	}
	sent, err := s.channel.SendDocument(ctx, chatID, notify.Document{
		FileRef: string(ref),
		Caption: caption,
	})
	if err != nil {
		return 0, fmt.Errorf("storage: send artifact: %w", err)
	}
	return sent.MessageID, nil
}

// Get fetches the raw bytes behind a reference.
func (s *ChannelStore) Get(ctx context.Context, ref domain.ArtifactRef) ([]byte, error) {
	if ref == "" {
		return nil, errors.New("storage: empty artifact ref")
	}
	data, err := s.channel.DownloadFile(ctx, string(ref))
	if err != nil {
		return nil, fmt.Errorf("storage: fetch artifact: %w", err)
	}
	return data, nil
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "artifact"
	}
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, "/", "_")
	return label
}

var _ ArtifactStore = (*ChannelStore)(nil)
