package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory implements Store entirely in process memory. Intended for tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryEntry
}

type memoryEntry struct {
	data []byte
	info Info
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryEntry)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if strings.TrimSpace(key) == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	sum := sha256.Sum256(data)
	info := Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     cloneMD(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; exists {
		return Info{}, fmt.Errorf("blob %s already exists", key)
	}
	m.objects[key] = memoryEntry{data: data, info: info}
	return cloneInfo(info), nil
}

func (m *Memory) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	m.mu.RLock()
	entry, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("blob %s: %w", key, fs.ErrNotExist)
	}
	return cloneInfo(entry.info), io.NopCloser(bytes.NewReader(entry.data)), nil
}

func (m *Memory) Head(ctx context.Context, key string) (Info, error) {
	m.mu.RLock()
	entry, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("blob %s: %w", key, fs.ErrNotExist)
	}
	return cloneInfo(entry.info), nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return false, nil
	}
	delete(m.objects, key)
	return true, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []Info
	for key, entry := range m.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, cloneInfo(entry.info))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *Memory) PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	return "", ErrUnsupported
}

func cloneInfo(info Info) Info {
	info.Metadata = cloneMD(info.Metadata)
	return info
}
