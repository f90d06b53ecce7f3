package storyboard

import (
	"fmt"
	"sort"
	"sync"
)

// Board is the consumer-side collection of emitted scenes, kept sorted by
// index. It holds at most one scene per index.
type Board struct {
	mu     sync.RWMutex
	scenes []Scene
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Add(scene Scene) error {
	if scene.Index < 1 || scene.Index > SceneCount {
		return fmt.Errorf("scene index %d out of range", scene.Index)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pos := sort.Search(len(b.scenes), func(i int) bool {
		return b.scenes[i].Index >= scene.Index
	})
	if pos < len(b.scenes) && b.scenes[pos].Index == scene.Index {
		return fmt.Errorf("scene %d already on board", scene.Index)
	}

	b.scenes = append(b.scenes, Scene{})
	copy(b.scenes[pos+1:], b.scenes[pos:])
	b.scenes[pos] = scene
	return nil
}

func (b *Board) Scenes() []Scene {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Scene(nil), b.scenes...)
}

func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scenes)
}

func (b *Board) Complete() bool {
	return b.Len() == SceneCount
}

func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenes = nil
}
