package service

import (
	"errors"
	"sort"
	"sync"

	"archive-depot-go/internal/model"

	"gorm.io/gorm"
)

// memArchiveRepo 是 ArchiveRepository 的内存实现。
type memArchiveRepo struct {
	mu        sync.Mutex
	nextID    uint
	archives  map[uint]model.Archive
	createErr error
}

func newMemArchiveRepo() *memArchiveRepo {
	return &memArchiveRepo{archives: make(map[uint]model.Archive)}
}

func (r *memArchiveRepo) Create(a *model.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	a.ID = r.nextID
	r.archives[a.ID] = *a
	return nil
}

func (r *memArchiveRepo) FindByID(id uint) (*model.Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.archives[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r *memArchiveRepo) FindAll() ([]model.Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Archive, 0, len(r.archives))
	for _, a := range r.archives {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memArchiveRepo) Update(a *model.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.archives[a.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Size = prev.Size
	r.archives[a.ID] = *a
	return nil
}

func (r *memArchiveRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.archives[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.archives, id)
	return nil
}

func (r *memArchiveRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.archives)
}

// memConfigRepo 是 SystemConfigRepository 的内存实现。
type memConfigRepo struct {
	mu   sync.Mutex
	cfgs []model.SystemConfiguration
}

func (r *memConfigRepo) Create(cfg *model.SystemConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.ID = uint(len(r.cfgs) + 1)
	r.cfgs = append(r.cfgs, *cfg)
	return nil
}

func (r *memConfigRepo) FindByID(id uint) (*model.SystemConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == 0 || int(id) > len(r.cfgs) {
		return nil, gorm.ErrRecordNotFound
	}
	cfg := r.cfgs[id-1]
	return &cfg, nil
}

func (r *memConfigRepo) FindAll() ([]model.SystemConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SystemConfiguration(nil), r.cfgs...), nil
}

var errStoreDown = errors.New("store down")
