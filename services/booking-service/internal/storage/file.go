package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

// FileBackend keeps every tenant in memory and, when a path is set, mirrors
// the whole set to a zstd-compressed JSON snapshot after each write. The
// snapshot is replaced atomically; a failed write leaves memory unchanged.
type FileBackend struct {
	path  string
	locks *keyedMutex

	mu      sync.RWMutex
	tenants map[string]model.Tenant
	order   []string

	enc *zstd.Encoder
	dec *zstd.Decoder
}

type snapshot struct {
	Tenants []model.Tenant `json:"tenants"`
}

// NewFileBackend loads the snapshot at path if one exists. An empty path
// keeps state in memory only.
func NewFileBackend(path string) (*FileBackend, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	b := &FileBackend{
		path:    path,
		locks:   newKeyedMutex(),
		tenants: map[string]model.Tenant{},
		enc:     enc,
		dec:     dec,
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) load() error {
	if b.path == "" {
		return nil
	}
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	plain, err := b.dec.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for _, t := range snap.Tenants {
		t.Normalize()
		b.tenants[t.ID] = t
		b.order = append(b.order, t.ID)
	}
	return nil
}

// persistLocked writes the snapshot. b.mu must be held for writing.
func (b *FileBackend) persistLocked() error {
	if b.path == "" {
		return nil
	}
	snap := snapshot{Tenants: make([]model.Tenant, 0, len(b.order))}
	for _, id := range b.order {
		snap.Tenants = append(snap.Tenants, b.tenants[id])
	}
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data := b.enc.EncodeAll(plain, nil)

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tenants-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (b *FileBackend) List(_ context.Context) ([]model.Tenant, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Tenant, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.tenants[id].Clone())
	}
	return out, nil
}

func (b *FileBackend) Get(_ context.Context, id string) (model.Tenant, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tenants[id]
	if !ok {
		return model.Tenant{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (b *FileBackend) Insert(_ context.Context, t model.Tenant) error {
	unlock := b.locks.Lock(t.ID)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tenants[t.ID]; ok {
		return ErrExists
	}
	b.tenants[t.ID] = t.Clone()
	b.order = append(b.order, t.ID)
	if err := b.persistLocked(); err != nil {
		delete(b.tenants, t.ID)
		b.order = b.order[:len(b.order)-1]
		return err
	}
	return nil
}

func (b *FileBackend) Mutate(ctx context.Context, id string, fn MutateFunc) (model.Tenant, error) {
	unlock := b.locks.Lock(id)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return model.Tenant{}, err
	}

	b.mu.RLock()
	cur, ok := b.tenants[id]
	b.mu.RUnlock()
	if !ok {
		return model.Tenant{}, ErrNotFound
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.Tenant{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tenants[id] = next
	if err := b.persistLocked(); err != nil {
		b.tenants[id] = cur
		return model.Tenant{}, err
	}
	return next.Clone(), nil
}

func (b *FileBackend) Delete(_ context.Context, id string) (bool, error) {
	unlock := b.locks.Lock(id)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.tenants[id]
	if !ok {
		return false, nil
	}
	prevOrder := b.order
	delete(b.tenants, id)
	b.order = make([]string, 0, len(prevOrder))
	for _, o := range prevOrder {
		if o != id {
			b.order = append(b.order, o)
		}
	}
	if err := b.persistLocked(); err != nil {
		b.tenants[id] = cur
		b.order = prevOrder
		return false, err
	}
	return true, nil
}

func (b *FileBackend) Ping(context.Context) error {
	return nil
}
