package event

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

// Verify locks the event row for the insert and the quorum count, so
// concurrent verifications see each other's rows.
func (s *service) Verify(ctx context.Context, userID, eventID int32, at Coordinates) (*VerifyResult, error) {
	if !at.valid() {
		return nil, apierrors.BadRequest("Coordinates are out of range")
	}

	result := &VerifyResult{}
	promoted := false
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.store.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil || event.RowStatus == store.Archived {
			return apierrors.NotFound("event", eventID)
		}
		if event.Status == store.EventCancelled {
			return apierrors.BadRequest("Cancelled events cannot be verified")
		}

		distance := DistanceMeters(Coordinates{Latitude: event.Latitude, Longitude: event.Longitude}, at)
		if distance > s.config.VerifyRadiusMeters {
			msg := fmt.Sprintf("You are %.0f meters away from the event; verification requires being within %.0f meters",
				distance, s.config.VerifyRadiusMeters)
			return apierrors.BadRequest(msg).WithContext("distanceMeters", distance)
		}
		result.DistanceMeters = distance

		verifier, err := s.store.CreateEventVerifier(ctx, &store.EventVerifier{EventID: eventID, UserID: userID})
		if errors.Is(err, store.ErrConflict) {
			return apierrors.AlreadyVerifier()
		}
		if err != nil {
			return err
		}
		result.Verifier = verifier

		count, err := s.store.CountEventVerifiers(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == store.EventDraft && count >= s.config.VerifyQuorum {
			verified := store.EventVerified
			event, err = s.store.UpdateEvent(ctx, &store.UpdateEvent{ID: eventID, Status: &verified})
			if err != nil {
				return err
			}
			promoted = true
		}
		result.Event = event
		return nil
	})
	// Reads inside the transaction may have cached uncommitted rows.
	s.store.InvalidateEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if promoted {
		s.emit(ctx, pubsub.EventVerified, result.Event)
	}
	return result, nil
}
