package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// MemoryBackend holds frames in process. It backs tests and the offline
// scene generator.
type MemoryBackend struct {
	mu     sync.RWMutex
	scenes map[string][]Scene
	frames map[string]raster.Frame
}

// NewMemoryBackend returns an empty backend. Datasets become resolvable once
// registered or given a scene.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		scenes: make(map[string][]Scene),
		frames: make(map[string]raster.Frame),
	}
}

// Register makes a dataset resolvable without adding scenes.
func (m *MemoryBackend) Register(dataset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenes[dataset]; !ok {
		m.scenes[dataset] = []Scene{}
	}
}

// Add stores a frame under its scene. Scene.ID defaults to dataset/acquired.
func (m *MemoryBackend) Add(scene Scene, frame raster.Frame) {
	if scene.Acquired.IsZero() {
		scene.Acquired = frame.Acquired
	}
	if scene.ID == "" {
		scene.ID = fmt.Sprintf("%s/%s", scene.Dataset, scene.Acquired.Format("20060102T150405"))
	}
	if scene.Properties == nil {
		scene.Properties = frame.Properties
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[scene.Dataset] = append(m.scenes[scene.Dataset], scene)
	m.frames[scene.ID] = frame
}

// Scenes lists a dataset's scenes.
func (m *MemoryBackend) Scenes(_ context.Context, dataset string) ([]Scene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scenes, ok := m.scenes[dataset]
	if !ok {
		return nil, fmt.Errorf("memory backend: %s: %w", dataset, domain.ErrDataUnavailable)
	}
	out := make([]Scene, len(scenes))
	copy(out, scenes)
	return out, nil
}

// Load returns the stored frame.
func (m *MemoryBackend) Load(ctx context.Context, scene Scene, _ []string) (raster.Frame, error) {
	if err := ctx.Err(); err != nil {
		return raster.Frame{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.frames[scene.ID]
	if !ok {
		return raster.Frame{}, fmt.Errorf("memory backend: scene %s: %w", scene.ID, domain.ErrDataUnavailable)
	}
	return f, nil
}
