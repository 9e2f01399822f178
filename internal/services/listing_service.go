package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/chat/internal/cache"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// ErrListingNotFound is returned for listings that are missing, deleted or suspended.
var ErrListingNotFound = errors.New("listing not found")

// IListingService resolves listings owned by the marketplace.
type IListingService interface {
	FindListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error)
	// LoadListingRef skips the cache. Use it where a stale owner or a taken-down
	// listing must not be accepted.
	LoadListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error)
}

const (
	listingsCollection = "listings"
	listingCachePrefix = "chat:listing:"
)

// listingService reads the marketplace listings collection, cache-aside in Redis.
type listingService struct {
	db  *mongo.Database
	rdb *redis.Client
	cfg *config.Config
}

// NewListingService creates a ListingService. rdb may be nil to disable caching.
func NewListingService(db *mongo.Database, rdb *redis.Client, cfg *config.Config) IListingService {
	return &listingService{db: db, rdb: rdb, cfg: cfg}
}

// FindListingRef returns the owner, title and thumbnail of a live listing.
func (s *listingService) FindListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error) {
	key := listingCachePrefix + listingID.String()
	if s.rdb != nil {
		var ref models.ListingRef
		err := cache.GetJSON(ctx, s.rdb, key, &ref)
		if err == nil {
			return &ref, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logging.Warn().Err(err).Str("listing_id", listingID.String()).Msg("listing cache read failed")
		}
	}

	return s.LoadListingRef(ctx, listingID)
}

// LoadListingRef reads the listing from Mongo and refreshes the cache entry. A
// listing that is gone evicts its entry.
func (s *listingService) LoadListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error) {
	key := listingCachePrefix + listingID.String()
	ref, err := s.loadListingRef(ctx, listingID)
	if errors.Is(err, ErrListingNotFound) && s.rdb != nil {
		if delErr := s.rdb.Del(ctx, key).Err(); delErr != nil {
			logging.Warn().Err(delErr).Str("listing_id", listingID.String()).Msg("listing cache evict failed")
		}
	}
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if err := cache.SetJSON(ctx, s.rdb, key, ref, cacheTTLOrDefault(s.cfg.ListingCacheTTL)); err != nil {
			logging.Warn().Err(err).Str("listing_id", listingID.String()).Msg("listing cache write failed")
		}
	}
	return ref, nil
}

func (s *listingService) loadListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error) {
	var listing models.Listing
	filter := bson.M{
		"_id":        listingID,
		"deleted":    false,
		"suspension": bson.M{"$exists": false},
	}
	err := s.db.Collection(listingsCollection).FindOne(ctx, filter).Decode(&listing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID, err)
	}

	// A suspended or deleted owner implicitly suspends their listings.
	var owner models.User
	err = s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": listing.UserID, "deleted": false}).Decode(&owner)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding owner of listing %s: %w", listingID, err)
	}
	if owner.Suspended {
		return nil, ErrListingNotFound
	}

	return &models.ListingRef{
		ID:        listing.ID,
		OwnerID:   listing.UserID,
		Title:     listing.Title,
		Thumbnail: thumbnailURL(s.cfg.ImageBaseS3URL, listing.Images),
	}, nil
}

func thumbnailURL(base string, images []string) string {
	if len(images) == 0 || images[0] == "" {
		return ""
	}
	if base == "" {
		return images[0]
	}
	return base + "/" + images[0]
}

// StaticListingService serves listings from memory. It backs the memory store driver
// when no MongoDB is configured, and tests.
type StaticListingService struct {
	mu       sync.RWMutex
	listings map[utils.SixID]models.ListingRef
}

func NewStaticListingService(refs ...models.ListingRef) *StaticListingService {
	s := &StaticListingService{listings: make(map[utils.SixID]models.ListingRef)}
	for _, ref := range refs {
		s.Put(ref)
	}
	return s
}

// Put adds or replaces a listing.
func (s *StaticListingService) Put(ref models.ListingRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[ref.ID] = ref
}

// Remove deletes a listing, as if it were taken down.
func (s *StaticListingService) Remove(listingID utils.SixID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listings, listingID)
}

func (s *StaticListingService) FindListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.listings[listingID]
	if !ok {
		return nil, ErrListingNotFound
	}
	return &ref, nil
}

func (s *StaticListingService) LoadListingRef(ctx context.Context, listingID utils.SixID) (*models.ListingRef, error) {
	return s.FindListingRef(ctx, listingID)
}

// cacheTTLOrDefault guards against a zero TTL, which Redis treats as no expiry.
func cacheTTLOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}
