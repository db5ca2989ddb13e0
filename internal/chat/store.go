//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRoomNotFound is returned when a room lookup finds nothing.
var ErrRoomNotFound = errors.New("room not found")

// flightTimeout bounds the default room round trip shared by coalesced callers.
const flightTimeout = 5 * time.Second

// RoomMembership guarantees the default room exists and users belong to it.
type RoomMembership interface {
	CreateDefaultRoomIfAbsent(ctx context.Context) (Room, error)
	AddParticipant(ctx context.Context, roomID, userID string) error
}

// MessageStore persists relayed messages.
type MessageStore interface {
	PersistMessage(ctx context.Context, message Message) (Message, error)
}

// Store implements RoomMembership and MessageStore on gorm.
type Store struct {
	db              *gorm.DB
	defaultRoomName string
	group           singleflight.Group
}

// NewStore creates a store whose default room is named defaultRoomName.
func NewStore(db *gorm.DB, defaultRoomName string) *Store {
	return &Store{db: db, defaultRoomName: defaultRoomName}
}

// Migrate creates or updates the rooms, participants and messages tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Room{}, &Participant{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate chat schema: %w", err)
	}
	return nil
}

// CreateDefaultRoomIfAbsent returns the default room, creating it on first use.
// Concurrent callers in this process share one round trip; callers in other
// processes are reconciled by the unique index on the room name. The shared
// round trip is bounded by flightTimeout, not by any caller's context, and
// each caller stops waiting when its own ctx is done.
func (s *Store) CreateDefaultRoomIfAbsent(ctx context.Context) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, fmt.Errorf("failed to resolve room %q: %w", s.defaultRoomName, err)
	}
	flight := s.group.DoChan(s.defaultRoomName, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return s.createRoomIfAbsent(flightCtx, s.defaultRoomName)
	})

	select {
	case <-ctx.Done():
		return Room{}, fmt.Errorf("failed to resolve room %q: %w", s.defaultRoomName, ctx.Err())
	case result := <-flight:
		if result.Err != nil {
			return Room{}, result.Err
		}
		return result.Val.(Room), nil
	}
}

func (s *Store) createRoomIfAbsent(ctx context.Context, name string) (Room, error) {
	candidate := Room{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return Room{}, fmt.Errorf("failed to create room %q: %w", name, err)
	}
	return s.RoomByName(ctx, name)
}

// RoomByName retrieves a room by its unique name.
func (s *Store) RoomByName(ctx context.Context, name string) (Room, error) {
	var room Room
	if err := s.db.WithContext(ctx).First(&room, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, fmt.Errorf("failed to find room %q: %w", name, err)
	}
	return room, nil
}

// AddParticipant records userID as a member of roomID. Adding an existing
// participant succeeds without changes.
func (s *Store) AddParticipant(ctx context.Context, roomID, userID string) error {
	participant := Participant{RoomID: roomID, UserID: userID, JoinedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&participant).Error
	if err != nil {
		return fmt.Errorf("failed to add participant %s to room %s: %w", userID, roomID, err)
	}
	return nil
}

// Participants lists the members of roomID in join order.
func (s *Store) Participants(ctx context.Context, roomID string) ([]Participant, error) {
	var participants []Participant
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at, user_id").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of room %s: %w", roomID, err)
	}
	return participants, nil
}

// PersistMessage stores message, assigning its ID and CreatedAt.
func (s *Store) PersistMessage(ctx context.Context, message Message) (Message, error) {
	message.ID = uuid.NewString()
	message.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return Message{}, fmt.Errorf("failed to persist message: %w", err)
	}
	return message, nil
}

// Messages lists the messages of roomID oldest first.
func (s *Store) Messages(ctx context.Context, roomID string) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at, id").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of room %s: %w", roomID, err)
	}
	return messages, nil
}
