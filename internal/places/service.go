package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentmap.hu/internal/geo"
	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/metrics"
)

// MessagePlacesChanged is the change-channel message type carrying a user's full list.
const MessagePlacesChanged = "places_changed"

// Geocoder resolves a free-text address; ok is false when nothing was found.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, bool)
}

// Publisher delivers a message to every open channel of one user.
type Publisher interface {
	PublishToUser(userID, msgType string, data any)
}

// ChangedPayload is the data of a places_changed message.
type ChangedPayload struct {
	Places []Place `json:"places"`
}

type Service struct {
	store     *Store
	geocoder  Geocoder
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewService wires the store with its collaborators. geocoder and publisher may be nil.
func NewService(store *Store, geocoder Geocoder, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		geocoder:  geocoder,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		logger:    logger.With(slog.String("component", "places_service")),
	}
}

// List returns the user's places, newest first, narrowed by term and criteria.
func (s *Service) List(ctx context.Context, userID, term string, criteria FilterCriteria) ([]Place, error) {
	list, err := s.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Apply(Search(list, term), criteria), nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (Place, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Place{}, err
	}
	if p.UserID != userID {
		return Place{}, ErrForbidden
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, userID string, in Input) (Place, error) {
	if err := Validate(in); err != nil {
		s.recordWrite("create", err)
		return Place{}, err
	}

	point, err := s.locate(ctx, in)
	if err != nil {
		s.recordWrite("create", err)
		return Place{}, err
	}

	now := s.now()
	p := Place{
		ID:        uuid.NewString(),
		UserID:    userID,
		Lat:       point.Lat,
		Lng:       point.Lon,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(&p)

	if err := s.store.Create(ctx, p); err != nil {
		s.recordWrite("create", err)
		return Place{}, err
	}
	s.recordWrite("create", nil)

	s.publish(ctx, userID)
	return p, nil
}

// Update replaces the writable fields of the user's place id with in.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (Place, error) {
	if err := Validate(in); err != nil {
		s.recordWrite("update", err)
		return Place{}, err
	}

	current, err := s.Get(ctx, userID, id)
	if err != nil {
		s.recordWrite("update", err)
		return Place{}, err
	}

	point, err := s.locate(ctx, in)
	if err != nil {
		s.recordWrite("update", err)
		return Place{}, err
	}

	p := current
	in.apply(&p)
	p.Lat, p.Lng = point.Lat, point.Lon
	p.UpdatedAt = s.now()

	if err := s.store.UpdateOwned(ctx, p); err != nil {
		s.recordWrite("update", err)
		return Place{}, err
	}
	s.recordWrite("update", nil)

	s.publish(ctx, userID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteOwned(ctx, id, userID); err != nil {
		s.recordWrite("delete", err)
		return err
	}
	s.recordWrite("delete", nil)

	s.publish(ctx, userID)
	return nil
}

// locate prefers explicit coordinates and falls back to geocoding the address.
func (s *Service) locate(ctx context.Context, in Input) (geo.Point, error) {
	if in.hasCoordinates() {
		return geo.Point{Lat: *in.Lat, Lon: *in.Lng}, nil
	}
	if s.geocoder == nil {
		return geo.Point{}, ErrAddressNotFound
	}
	point, ok := s.geocoder.Geocode(ctx, in.Address)
	if !ok {
		return geo.Point{}, fmt.Errorf("%w: %q", ErrAddressNotFound, in.Address)
	}
	return point, nil
}

// publish sends the user's refreshed list. A failure here only costs the live
// update, the write itself has succeeded.
func (s *Service) publish(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}
	list, err := s.store.ListByOwner(ctx, userID)
	if err != nil {
		logging.LogError(s.logger, "failed to load places for change notification", err,
			slog.String("user_id", userID))
		return
	}
	s.publisher.PublishToUser(userID, MessagePlacesChanged, ChangedPayload{Places: list})
}

func (s *Service) recordWrite(op string, err error) {
	result := "ok"
	var verr *ValidationError
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrForbidden):
		result = "forbidden"
	case errors.Is(err, ErrAddressNotFound):
		result = "address_not_found"
	case errors.As(err, &verr):
		result = "invalid"
	default:
		result = "error"
		logging.LogError(s.logger, "place write failed", err, slog.String("operation", op))
	}
	metrics.PlaceWrites.WithLabelValues(op, result).Inc()
}
