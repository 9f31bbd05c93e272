// Package cache keeps the last decoded board of recently viewed sessions so
// a session switch can show a stale-but-valid map before the first poll
// lands.
package cache

import (
	"sync"

	"github.com/pacroyale/viewer/pkg/snapshot"
)

// BoardCache is an LRU of boards keyed by session id
type BoardCache struct {
	capacity int
	entries  map[int64]*cacheNode
	head     *cacheNode
	tail     *cacheNode
	hits     int64
	misses   int64
	mutex    sync.RWMutex
}

// cacheNode is one entry of the doubly linked recency list
type cacheNode struct {
	key   int64
	board snapshot.Board
	prev  *cacheNode
	next  *cacheNode
}

// NewBoardCache creates a cache holding at most capacity boards
func NewBoardCache(capacity int) *BoardCache {
	if capacity <= 0 {
		capacity = 16
	}

	head := &cacheNode{}
	tail := &cacheNode{}
	head.next = tail
	tail.prev = head

	return &BoardCache{
		capacity: capacity,
		entries:  make(map[int64]*cacheNode),
		head:     head,
		tail:     tail,
	}
}

// Get returns the cached board for a session and marks it recently used
func (bc *BoardCache) Get(sessionID int64) (snapshot.Board, bool) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	node, ok := bc.entries[sessionID]
	if !ok {
		bc.misses++
		return snapshot.Board{}, false
	}
	bc.hits++
	bc.moveToHead(node)
	return node.board, true
}

// Contains reports whether a board is cached without touching recency
func (bc *BoardCache) Contains(sessionID int64) bool {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	_, ok := bc.entries[sessionID]
	return ok
}

// Put stores the board for a session, evicting the least recent entry when
// full
func (bc *BoardCache) Put(sessionID int64, board snapshot.Board) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if node, ok := bc.entries[sessionID]; ok {
		node.board = board
		bc.moveToHead(node)
		return
	}

	node := &cacheNode{key: sessionID, board: board}
	bc.entries[sessionID] = node
	bc.addToHead(node)

	if len(bc.entries) > bc.capacity {
		last := bc.removeTail()
		delete(bc.entries, last.key)
	}
}

// Size returns the number of cached boards
func (bc *BoardCache) Size() int {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return len(bc.entries)
}

// Clear drops every entry
func (bc *BoardCache) Clear() {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	bc.entries = make(map[int64]*cacheNode)
	bc.head.next = bc.tail
	bc.tail.prev = bc.head
}

// GetStats returns cache statistics
func (bc *BoardCache) GetStats() map[string]interface{} {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	return map[string]interface{}{
		"capacity":    bc.capacity,
		"size":        len(bc.entries),
		"hits":        bc.hits,
		"misses":      bc.misses,
		"utilization": float64(len(bc.entries)) / float64(bc.capacity),
	}
}

func (bc *BoardCache) addToHead(node *cacheNode) {
	node.prev = bc.head
	node.next = bc.head.next
	bc.head.next.prev = node
	bc.head.next = node
}

func (bc *BoardCache) removeNode(node *cacheNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

func (bc *BoardCache) moveToHead(node *cacheNode) {
	bc.removeNode(node)
	bc.addToHead(node)
}

func (bc *BoardCache) removeTail() *cacheNode {
	last := bc.tail.prev
	bc.removeNode(last)
	return last
}
