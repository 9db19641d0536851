package services_test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

// memoryStore backs the in-memory repositories and enforces the same uniqueness
// rules as the Postgres schema: one occupying booking per slot and one review per booking.
type memoryStore struct {
	mu        sync.Mutex
	bookings  map[string]*entities.Booking
	history   map[string][]*entities.BookingStatusEvent
	reviews   map[string]*entities.Review
	services  map[string]*entities.ServiceListing
	providers map[string]*entities.Provider

	incrementErr   error
	updateRatingFn func(target entities.RatingTarget, id string) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bookings:  make(map[string]*entities.Booking),
		history:   make(map[string][]*entities.BookingStatusEvent),
		reviews:   make(map[string]*entities.Review),
		services:  make(map[string]*entities.ServiceListing),
		providers: make(map[string]*entities.Provider),
	}
}

func cloneBooking(b *entities.Booking) *entities.Booking {
	c := *b
	if b.Cancellation != nil {
		cancellation := *b.Cancellation
		c.Cancellation = &cancellation
	}
	if b.Completion != nil {
		completion := *b.Completion
		c.Completion = &completion
	}
	return &c
}

func cloneReview(r *entities.Review) *entities.Review {
	c := *r
	c.Pros = append([]string(nil), r.Pros...)
	c.Cons = append([]string(nil), r.Cons...)
	if r.ProviderResponse != nil {
		resp := *r.ProviderResponse
		c.ProviderResponse = &resp
	}
	return &c
}

func (s *memoryStore) slotTaken(providerID, date, start, excludeID string) bool {
	for _, b := range s.bookings {
		if b.ID == excludeID || !b.Status.IsOccupying() {
			continue
		}
		if b.ProviderID == providerID && b.ScheduledDate == date && b.ScheduledTime.Start == start {
			return true
		}
	}
	return false
}

func (s *memoryStore) addService(svc *entities.ServiceListing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *svc
	s.services[svc.ID] = &c
}

func (s *memoryStore) addProvider(p *entities.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.providers[p.ID] = &c
}

func (s *memoryStore) putBooking(b *entities.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = cloneBooking(b)
}

func (s *memoryStore) booking(id string) *entities.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBooking(s.bookings[id])
}

func (s *memoryStore) provider(id string) *entities.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.providers[id]
	return &c
}

func (s *memoryStore) service(id string) *entities.ServiceListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.services[id]
	return &c
}

// memoryBookingRepo implements repositories.BookingRepository
type memoryBookingRepo struct{ *memoryStore }

func (r memoryBookingRepo) Create(ctx context.Context, booking *entities.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.BookingCode == booking.BookingCode {
			return repositories.ErrBookingCodeTaken
		}
	}
	if r.slotTaken(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start, "") {
		return apperrors.NewSlotConflictError(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start)
	}
	r.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (r memoryBookingRepo) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("booking not found")
	}
	return cloneBooking(b), nil
}

func (r memoryBookingRepo) ExistsAtSlot(ctx context.Context, providerID, date, startTime, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slotTaken(providerID, date, startTime, excludeID), nil
}

func (r memoryBookingRepo) UpdateStatus(ctx context.Context, booking *entities.Booking, expected entities.BookingStatus, event *entities.BookingStatusEvent, incrementCompleted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.bookings[booking.ID]
	if !ok {
		return apperrors.NewNotFoundError("booking not found")
	}
	if stored.Status != expected {
		return repositories.ErrStatusChanged
	}
	if booking.Status.IsOccupying() && r.slotTaken(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start, booking.ID) {
		return apperrors.NewSlotConflictError(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start)
	}
	var provider *entities.Provider
	if incrementCompleted {
		if r.incrementErr != nil {
			return r.incrementErr
		}
		if provider, ok = r.providers[booking.ProviderID]; !ok {
			return apperrors.NewNotFoundError("provider not found")
		}
	}
	r.bookings[booking.ID] = cloneBooking(booking)
	r.history[booking.ID] = append(r.history[booking.ID], event)
	if provider != nil {
		provider.CompletedServices++
	}
	return nil
}

func (r memoryBookingRepo) UpdateSchedule(ctx context.Context, booking *entities.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.bookings[booking.ID]
	if !ok || stored.Status != entities.BookingStatusPending {
		return apperrors.NewNotFoundError("pending booking not found")
	}
	if r.slotTaken(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start, booking.ID) {
		return apperrors.NewSlotConflictError(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start)
	}
	r.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (r memoryBookingRepo) list(match func(*entities.Booking) bool, filter repositories.BookingFilter) []*entities.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Booking
	for _, b := range r.bookings {
		if match(b) && (filter.Status == "" || b.Status == filter.Status) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate > out[j].ScheduledDate })
	return out
}

func (r memoryBookingRepo) ListByCustomer(ctx context.Context, customerID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	return r.list(func(b *entities.Booking) bool { return b.CustomerID == customerID }, filter), nil
}

func (r memoryBookingRepo) ListByProvider(ctx context.Context, providerID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	return r.list(func(b *entities.Booking) bool { return b.ProviderID == providerID }, filter), nil
}

func (r memoryBookingRepo) ListHistory(ctx context.Context, bookingID string) ([]*entities.BookingStatusEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.BookingStatusEvent(nil), r.history[bookingID]...), nil
}

func (r memoryBookingRepo) ListPendingReview(ctx context.Context, customerID string) ([]*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reviewed := make(map[string]bool)
	for _, rv := range r.reviews {
		reviewed[rv.BookingID] = true
	}
	var out []*entities.Booking
	for _, b := range r.bookings {
		if b.CustomerID == customerID && b.Status == entities.BookingStatusCompleted && !reviewed[b.ID] {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// memoryReviewRepo implements repositories.ReviewRepository
type memoryReviewRepo struct{ *memoryStore }

func (r memoryReviewRepo) Create(ctx context.Context, review *entities.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range r.reviews {
		if rv.BookingID == review.BookingID {
			return apperrors.NewAlreadyReviewedError(review.BookingID)
		}
	}
	r.reviews[review.ID] = cloneReview(review)
	if b, ok := r.bookings[review.BookingID]; ok {
		b.IsReviewed = true
	}
	return nil
}

func (r memoryReviewRepo) GetByID(ctx context.Context, id string) (*entities.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("review not found")
	}
	return cloneReview(rv), nil
}

func (r memoryReviewRepo) GetByBookingID(ctx context.Context, bookingID string) (*entities.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range r.reviews {
		if rv.BookingID == bookingID {
			return cloneReview(rv), nil
		}
	}
	return nil, apperrors.NewNotFoundError("review not found")
}

func (r memoryReviewRepo) Update(ctx context.Context, review *entities.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reviews[review.ID]
	if !ok {
		return apperrors.NewNotFoundError("review not found")
	}
	stored.Rating = review.Rating
	stored.Comment = review.Comment
	stored.Pros = append([]string(nil), review.Pros...)
	stored.Cons = append([]string(nil), review.Cons...)
	stored.WouldRecommend = review.WouldRecommend
	stored.UpdatedAt = review.UpdatedAt
	return nil
}

func (r memoryReviewRepo) SetVisibility(ctx context.Context, id string, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reviews[id]
	if !ok {
		return apperrors.NewNotFoundError("review not found")
	}
	stored.IsVisible = visible
	return nil
}

func (r memoryReviewRepo) SetProviderResponse(ctx context.Context, id string, response *entities.ProviderResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reviews[id]
	if !ok {
		return apperrors.NewNotFoundError("review not found")
	}
	resp := *response
	stored.ProviderResponse = &resp
	return nil
}

func (r memoryReviewRepo) matches(rv *entities.Review, target entities.RatingTarget, id string) bool {
	if target == entities.RatingTargetService {
		return rv.ServiceID == id
	}
	return rv.ProviderID == id
}

func (r memoryReviewRepo) ListVisible(ctx context.Context, target entities.RatingTarget, targetID string, filter repositories.ReviewFilter) ([]*entities.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Review
	for _, rv := range r.reviews {
		if rv.IsVisible && r.matches(rv, target, targetID) {
			out = append(out, cloneReview(rv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memoryReviewRepo) VisibleTotals(ctx context.Context, target entities.RatingTarget, targetID string) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum, count int64
	for _, rv := range r.reviews {
		if rv.IsVisible && r.matches(rv, target, targetID) {
			sum += int64(rv.Rating.Overall)
			count++
		}
	}
	return sum, count, nil
}

// memoryServiceRepo implements repositories.ServiceListingRepository
type memoryServiceRepo struct{ *memoryStore }

func (r memoryServiceRepo) Create(ctx context.Context, service *entities.ServiceListing) error {
	r.addService(service)
	return nil
}

func (r memoryServiceRepo) GetByID(ctx context.Context, id string) (*entities.ServiceListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("service not found")
	}
	c := *svc
	return &c, nil
}

func (r memoryServiceRepo) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	return page(ids, limit, offset), nil
}

func (r memoryServiceRepo) UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateRatingFn != nil {
		if err := r.updateRatingFn(entities.RatingTargetService, id); err != nil {
			return err
		}
	}
	svc, ok := r.services[id]
	if !ok {
		return apperrors.NewNotFoundError("service not found")
	}
	svc.Rating = summary
	return nil
}

// memoryProviderRepo implements repositories.ProviderRepository
type memoryProviderRepo struct{ *memoryStore }

func (r memoryProviderRepo) Create(ctx context.Context, provider *entities.Provider) error {
	r.addProvider(provider)
	return nil
}

func (r memoryProviderRepo) GetByID(ctx context.Context, id string) (*entities.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("provider not found")
	}
	c := *p
	return &c, nil
}

func (r memoryProviderRepo) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return page(ids, limit, offset), nil
}

func (r memoryProviderRepo) UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateRatingFn != nil {
		if err := r.updateRatingFn(entities.RatingTargetProvider, id); err != nil {
			return err
		}
	}
	p, ok := r.providers[id]
	if !ok {
		return apperrors.NewNotFoundError("provider not found")
	}
	p.Rating = summary
	return nil
}

func page(ids []string, limit, offset int) []string {
	sort.Strings(ids)
	if offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end]
}

// MockEventBus records published events and fans them out to in-process subscribers
type MockEventBus struct {
	mu          sync.Mutex
	subscribers map[string][]chan *entities.MarketplaceEvent
	published   []*entities.MarketplaceEvent
	publishErr  error
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		subscribers: make(map[string][]chan *entities.MarketplaceEvent),
	}
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.MarketplaceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, event)
	for _, ch := range m.subscribers[channel] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.MarketplaceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *entities.MarketplaceEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers[channel] {
		close(ch)
	}
	delete(m.subscribers, channel)
	return nil
}

func (m *MockEventBus) Close() error {
	return nil
}

func (m *MockEventBus) Types() []entities.MarketplaceEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.MarketplaceEventType, 0, len(m.published))
	for _, e := range m.published {
		out = append(out, e.EventType)
	}
	return out
}

func (m *MockEventBus) SubscriberCount(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers[channel])
}

// MockCacheProvider is a map-backed cache that records deletions
type MockCacheProvider struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{data: make(map[string][]byte)}
}

func (m *MockCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCacheProvider) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *MockCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MockCacheProvider) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

var errInjected = fmt.Errorf("injected failure")
