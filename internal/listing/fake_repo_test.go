package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zagshelpzags/zagmarket/internal/model"
)

// memoryRepo はテスト用のインメモリListingRepository。
type memoryRepo struct {
	mu       sync.Mutex
	seq      int
	rows     map[string]*model.Listing
	now      func() time.Time
	writes   int
	failList bool
	failBulk bool
}

func newMemoryRepo(now func() time.Time) *memoryRepo {
	return &memoryRepo{rows: map[string]*model.Listing{}, now: now}
}

func clone(l *model.Listing) *model.Listing {
	c := *l
	c.Tags = append([]string{}, l.Tags...)
	return &c
}

func (r *memoryRepo) Create(_ context.Context, l *model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.writes++
	l.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", r.seq)
	l.CreatedAt = r.now()
	l.UpdatedAt = l.CreatedAt
	if l.Tags == nil {
		l.Tags = []string{}
	}
	r.rows[l.ID] = clone(l)
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, id string) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.rows[id]; ok {
		return clone(l), nil
	}
	return nil, nil
}

func (r *memoryRepo) matching(filter model.ListingFilter) []*model.Listing {
	var out []*model.Listing
	for _, l := range r.rows {
		if len(filter.Tags) > 0 && !anyTag(l.Tags, filter.Tags) {
			continue
		}
		if filter.Since != nil && l.CreatedAt.Before(*filter.Since) && l.UpdatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, clone(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func anyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func (r *memoryRepo) List(_ context.Context, filter model.ListingFilter, limit, skip int) ([]*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList {
		return nil, errors.New("store unavailable")
	}
	all := r.matching(filter)
	if skip >= len(all) {
		return []*model.Listing{}, nil
	}
	end := min(skip+limit, len(all))
	return all[skip:end], nil
}

func (r *memoryRepo) Count(_ context.Context, filter model.ListingFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

func (r *memoryRepo) ListByOwner(_ context.Context, owner string) ([]*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Listing
	for _, l := range r.matching(model.ListingFilter{}) {
		if l.CreatedBy == owner {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) Update(_ context.Context, l *model.Listing) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[l.ID]
	if !ok || cur.CreatedBy != l.CreatedBy {
		return nil, nil
	}
	r.writes++
	next := clone(l)
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = r.now()
	r.rows[l.ID] = next
	return clone(next), nil
}

func (r *memoryRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return false, nil
	}
	r.writes++
	delete(r.rows, id)
	return true, nil
}

func (r *memoryRepo) DeleteByOwner(_ context.Context, owner string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBulk {
		return 0, errors.New("store unavailable")
	}
	var n int64
	for id, l := range r.rows {
		if l.CreatedBy == owner {
			delete(r.rows, id)
			n++
		}
	}
	r.writes++
	return n, nil
}

// put は任意のタイムスタンプで行を直接差し込む。
func (r *memoryRepo) put(l *model.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[l.ID] = clone(l)
}
