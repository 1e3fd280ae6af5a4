package graphics

import (
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"
)

// DefaultQuotaBytes is the default total memory budget for stored images.
const DefaultQuotaBytes = 320 * 1024 * 1024

// MaxImageBytes is the largest single image the store will accept.
const MaxImageBytes = 64 * 1024 * 1024

// MaxPendingChunks bounds the number of concurrent chunked transfers to
// prevent an unbounded number of partial transfers from exhausting memory.
const MaxPendingChunks = 32

// MaxChunkAccumulation bounds the accumulated size of a single chunked
// transfer.
const MaxChunkAccumulation = 64 * 1024 * 1024

type storedImage struct {
	data       ImageData
	lastAccess uint64
}

// Store is the central image store for both the Kitty and iTerm2 graphics
// protocols. It enforces a configurable memory quota and evicts
// least-recently-used images when storing a new one would exceed it.
type Store struct {
	images        map[uint32]*storedImage
	placements    map[uint32][]ImagePlacement
	pendingChunks map[uint32][]byte
	// pendingOrder tracks chunk-transfer insertion order so the oldest
	// pending transfer can be dropped deterministically when the
	// in-flight limit is reached, mirroring Go map iteration's
	// unspecified order being unsuitable for that purpose.
	pendingOrder []uint32
	totalBytes   int
	quotaBytes   int
	accessCount  uint64
	nextAutoID   uint32
}

// NewStore returns a Store with the default 320 MiB quota.
func NewStore() *Store { return NewStoreWithQuota(DefaultQuotaBytes) }

// NewStoreWithQuota returns a Store with a caller-supplied quota, useful
// for tests that want to exercise eviction without allocating hundreds of
// megabytes.
func NewStoreWithQuota(quotaBytes int) *Store {
	return &Store{
		images:        make(map[uint32]*storedImage),
		placements:    make(map[uint32][]ImagePlacement),
		pendingChunks: make(map[uint32][]byte),
		quotaBytes:    quotaBytes,
		nextAutoID:    1,
	}
}

// TotalBytes returns current memory usage across all stored images.
func (s *Store) TotalBytes() int { return s.totalBytes }

// QuotaBytes returns the configured memory quota.
func (s *Store) QuotaBytes() int { return s.quotaBytes }

// ImageCount returns the number of currently stored images.
func (s *Store) ImageCount() int { return len(s.images) }

// NextImageID allocates the next auto-assigned image ID, skipping 0.
func (s *Store) NextImageID() ImageID {
	id := s.nextAutoID
	s.nextAutoID++
	if s.nextAutoID == 0 {
		s.nextAutoID = 1
	}
	return ImageID(id)
}

// StoreImage stores data under id, replacing any existing image with the
// same ID. It enforces the per-image size limit and evicts
// least-recently-used images until the total quota is satisfied.
func (s *Store) StoreImage(id ImageID, data ImageData) error {
	size := data.ByteSize()
	if size > MaxImageBytes {
		return &ImageTooLargeError{Size: size, Max: MaxImageBytes}
	}

	if old, ok := s.images[uint32(id)]; ok {
		s.totalBytes -= old.data.ByteSize()
		delete(s.images, uint32(id))
	}

	for s.totalBytes+size > s.quotaBytes && len(s.images) > 0 {
		s.evictLRU()
	}

	if s.totalBytes+size > s.quotaBytes {
		return &QuotaExceededError{Used: s.totalBytes + size, Quota: s.quotaBytes}
	}

	s.accessCount++
	s.images[uint32(id)] = &storedImage{data: data, lastAccess: s.accessCount}
	s.totalBytes += size
	return nil
}

// GetImage returns stored image data by ID, refreshing its LRU position.
func (s *Store) GetImage(id ImageID) (*ImageData, error) {
	stored, ok := s.images[uint32(id)]
	if !ok {
		return nil, &ImageNotFoundError{ID: id}
	}
	s.accessCount++
	stored.lastAccess = s.accessCount
	return &stored.data, nil
}

// HasImage reports whether id is stored, without affecting LRU order.
func (s *Store) HasImage(id ImageID) bool {
	_, ok := s.images[uint32(id)]
	return ok
}

// DeleteImage removes id and all of its placements.
func (s *Store) DeleteImage(id ImageID) error {
	stored, ok := s.images[uint32(id)]
	if !ok {
		return &ImageNotFoundError{ID: id}
	}
	s.totalBytes -= stored.data.ByteSize()
	delete(s.images, uint32(id))
	delete(s.placements, uint32(id))
	return nil
}

// DeleteAll clears every stored image, placement, and pending transfer.
func (s *Store) DeleteAll() {
	s.images = make(map[uint32]*storedImage)
	s.placements = make(map[uint32][]ImagePlacement)
	s.pendingChunks = make(map[uint32][]byte)
	s.pendingOrder = nil
	s.totalBytes = 0
}

// PlaceImage records a placement for an already-stored image.
func (s *Store) PlaceImage(p ImagePlacement) error {
	if !s.HasImage(p.ImageID) {
		return &ImageNotFoundError{ID: p.ImageID}
	}
	s.placements[uint32(p.ImageID)] = append(s.placements[uint32(p.ImageID)], p)
	return nil
}

// DeletePlacement removes a specific placement of an image.
func (s *Store) DeletePlacement(imageID ImageID, placementID uint32) error {
	list, ok := s.placements[uint32(imageID)]
	if !ok {
		return &PlacementNotFoundError{ImageID: imageID, PlacementID: placementID}
	}
	out := list[:0]
	found := false
	for _, p := range list {
		if p.PlacementID == placementID {
			found = true
			continue
		}
		out = append(out, p)
	}
	if !found {
		return &PlacementNotFoundError{ImageID: imageID, PlacementID: placementID}
	}
	if len(out) == 0 {
		delete(s.placements, uint32(imageID))
	} else {
		s.placements[uint32(imageID)] = out
	}
	return nil
}

// PlacementsInRange returns every placement whose row falls within
// [startRow, endRow), sorted by z-index for correct back-to-front layering.
func (s *Store) PlacementsInRange(startRow, endRow int32) []ImagePlacement {
	var result []ImagePlacement
	for _, list := range s.placements {
		for _, p := range list {
			if p.Row >= startRow && p.Row < endRow {
				result = append(result, p)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ZIndex < result[j].ZIndex })
	return result
}

// AppendChunk accumulates one chunk of a chunked transfer for imageID. If
// the in-flight transfer limit is already reached, the oldest pending
// transfer is dropped to make room.
func (s *Store) AppendChunk(imageID uint32, data []byte) error {
	if _, exists := s.pendingChunks[imageID]; !exists && len(s.pendingChunks) >= MaxPendingChunks {
		if len(s.pendingOrder) > 0 {
			oldest := s.pendingOrder[0]
			s.pendingOrder = s.pendingOrder[1:]
			slog.Warn("dropping oldest pending chunked transfer", "image_id", oldest, "reason", "pending chunks limit reached")
			delete(s.pendingChunks, oldest)
		}
	}

	accumulated, exists := s.pendingChunks[imageID]
	newSize := len(accumulated) + len(data)
	if newSize > MaxChunkAccumulation {
		delete(s.pendingChunks, imageID)
		for i, id := range s.pendingOrder {
			if id == imageID {
				s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
				break
			}
		}
		return &ImageTooLargeError{Size: newSize, Max: MaxChunkAccumulation}
	}
	if !exists {
		s.pendingOrder = append(s.pendingOrder, imageID)
	}
	s.pendingChunks[imageID] = append(accumulated, data...)
	return nil
}

// CompleteChunkedTransfer removes and returns the accumulated data for
// imageID. The second return value reports whether a pending transfer
// existed; a false result (imageID never started, or was already
// completed) carries a nil data slice.
func (s *Store) CompleteChunkedTransfer(imageID uint32) ([]byte, bool) {
	data, ok := s.pendingChunks[imageID]
	if !ok {
		return nil, false
	}
	delete(s.pendingChunks, imageID)
	for i, id := range s.pendingOrder {
		if id == imageID {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			break
		}
	}
	return data, true
}

// HasPendingChunks reports whether imageID has an in-flight chunked
// transfer.
func (s *Store) HasPendingChunks(imageID uint32) bool {
	_, ok := s.pendingChunks[imageID]
	return ok
}

func (s *Store) evictLRU() {
	var lruID uint32
	var lru *storedImage
	for id, stored := range s.images {
		if lru == nil || stored.lastAccess < lru.lastAccess {
			lruID, lru = id, stored
		}
	}
	if lru == nil {
		return
	}
	delete(s.images, lruID)
	delete(s.placements, lruID)
	s.totalBytes -= lru.data.ByteSize()
	slog.Debug("evicted image", "image_id", lruID, "freed_bytes", humanize.Bytes(uint64(lru.data.ByteSize())), "total_bytes", s.totalBytes)
}
