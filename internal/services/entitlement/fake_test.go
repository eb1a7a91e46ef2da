package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
)

type txKey struct{}

// fakeRepo хранилище в памяти с теми же правилами отбора, что и в SQL.
// InTx сериализует транзакции, что соответствует блокировке строки пользователя.
type fakeRepo struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	users  map[int64]*models.User
	subs   []*models.Subscription
	nextID int64
	failOn string
}

func newFakeRepo(users ...*models.User) *fakeRepo {
	r := &fakeRepo{users: make(map[int64]*models.User)}
	for _, u := range users {
		cp := *u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *fakeRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshotUsers := make(map[int64]models.User, len(r.users))
	for id, u := range r.users {
		snapshotUsers[id] = *u
	}
	snapshotSubs := make([]models.Subscription, len(r.subs))
	for i, s := range r.subs {
		snapshotSubs[i] = *s
	}
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		r.mu.Lock()
		r.users = make(map[int64]*models.User, len(snapshotUsers))
		for id, u := range snapshotUsers {
			u := u
			r.users[id] = &u
		}
		r.subs = r.subs[:0]
		for i := range snapshotSubs {
			s := snapshotSubs[i]
			r.subs = append(r.subs, &s)
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepo) LockUser(_ context.Context, userID int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) MarkTrialUsed(_ context.Context, userID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	if u.TrialUsed {
		return false, nil
	}
	u.TrialUsed = true
	u.TrialStartDate = &at
	return true, nil
}

func (r *fakeRepo) latest(userID int64, now time.Time, statuses ...models.SubscriptionStatus) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || !s.EndTime.After(now) || !hasStatus(s.Status, statuses) {
			continue
		}
		if best == nil || s.EndTime.After(best.EndTime) || (s.EndTime.Equal(best.EndTime) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeRepo) ActiveSubscription(_ context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	return r.latest(userID, now, models.StatusTrial, models.StatusActive)
}

func (r *fakeRepo) EntitledSubscription(_ context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	return r.latest(userID, now, models.StatusTrial, models.StatusActive, models.StatusCancelled)
}

func (r *fakeRepo) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == "create" {
		return errors.New("insert failed")
	}
	r.nextID++
	sub.ID = r.nextID
	cp := *sub
	r.subs = append(r.subs, &cp)
	return nil
}

func (r *fakeRepo) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == sub.ID {
			*s = *sub
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeRepo) CloseEntitlements(_ context.Context, userID int64, now time.Time, keepID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == "close" {
		return 0, errors.New("close failed")
	}
	var n int64
	for _, s := range r.subs {
		if s.UserID != userID || s.ID == keepID || !s.EndTime.After(now) {
			continue
		}
		if !hasStatus(s.Status, []models.SubscriptionStatus{models.StatusTrial, models.StatusActive, models.StatusCancelled}) {
			continue
		}
		s.Status = models.StatusExpired
		if now.After(s.StartTime) {
			s.EndTime = now
		} else {
			s.EndTime = s.StartTime
		}
		n++
	}
	return n, nil
}

// activeCount число записей trial/active с окончанием после now.
func (r *fakeRepo) activeCount(userID int64, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subs {
		if s.UserID == userID && s.EndTime.After(now) &&
			(s.Status == models.StatusTrial || s.Status == models.StatusActive) {
			n++
		}
	}
	return n
}

func (r *fakeRepo) user(id int64) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func hasStatus(st models.SubscriptionStatus, list []models.SubscriptionStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}
