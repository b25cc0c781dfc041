package reservation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaaradmin/internal/cache"
	"bazaaradmin/internal/model"
	"bazaaradmin/internal/queue"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/retry"
)

// ----- fakes -----

// fakeCombos is an in-memory CombinationStore with programmable failures.
type fakeCombos struct {
	mu          sync.Mutex
	rows        map[uint64]*model.Combination
	nextID      uint64
	readFails   int // fail this many GetByID calls before serving
	claimFails  int // fail this many Claim calls before serving
	probeFails  int // fail this many CheckAvailability calls before serving
	releaseErr  error
	readCalls   int
	claimCalls  int
	releaseLog  []uint64
}

func newFakeCombos() *fakeCombos {
	return &fakeCombos{rows: make(map[uint64]*model.Combination)}
}

func (f *fakeCombos) addRow(marketID uint64, letter string, number int) *model.Combination {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cb := &model.Combination{
		ID:            f.nextID,
		MarketID:      marketID,
		BlockLetter:   letter,
		ShopNumber:    number,
		BlockShopCode: letter + strconv.Itoa(number),
		IsAvailable:   true,
		IsActive:      true,
	}
	f.rows[cb.ID] = cb
	return cb
}

func (f *fakeCombos) Ensure(ctx context.Context, marketID uint64, blockLetter string, shopNumber int, blockShopCode string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cb := range f.rows {
		if cb.MarketID == marketID && cb.BlockShopCode == blockShopCode {
			return cb.ID, nil
		}
	}
	f.nextID++
	f.rows[f.nextID] = &model.Combination{
		ID: f.nextID, MarketID: marketID, BlockLetter: blockLetter,
		ShopNumber: shopNumber, BlockShopCode: blockShopCode,
		IsAvailable: true, IsActive: true,
	}
	return f.nextID, nil
}

func (f *fakeCombos) CheckAvailability(ctx context.Context, marketID uint64, blockShopCode string) (repository.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeFails > 0 {
		f.probeFails--
		return repository.Availability{}, errors.New("probe timeout")
	}
	for _, cb := range f.rows {
		if cb.MarketID == marketID && cb.BlockShopCode == blockShopCode && cb.SelectedBy != nil {
			return repository.Availability{
				Available: false, BlockShopCode: blockShopCode,
				SelectedBy: cb.SelectedBy, SelectedAt: cb.SelectedAt,
			}, nil
		}
	}
	return repository.Availability{Available: true, BlockShopCode: blockShopCode}, nil
}

func (f *fakeCombos) GetByID(ctx context.Context, id uint64) (*model.Combination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readFails > 0 {
		f.readFails--
		return nil, errors.New("read timeout")
	}
	cb, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrCombinationNotFound
	}
	cp := *cb
	return &cp, nil
}

func (f *fakeCombos) Claim(ctx context.Context, id, userID uint64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	if f.claimFails > 0 {
		f.claimFails--
		return false, errors.New("write timeout")
	}
	cb, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if cb.SelectedBy != nil && *cb.SelectedBy != userID {
		return false, nil // guard miss, someone else holds it
	}
	uid, t := userID, at
	cb.SelectedBy = &uid
	cb.SelectedAt = &t
	return true, nil
}

func (f *fakeCombos) Release(ctx context.Context, id, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if cb, ok := f.rows[id]; ok && cb.SelectedBy != nil && *cb.SelectedBy == userID {
		cb.SelectedBy = nil
		cb.SelectedAt = nil
	}
	f.releaseLog = append(f.releaseLog, id)
	return nil
}

// fakeProfiles is an in-memory ProfileStore; it also satisfies cache.Loader.
type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[uint64]*model.UserProfile
	saveFails int
	saveCalls int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: make(map[uint64]*model.UserProfile)}
}

func (f *fakeProfiles) GetByUserID(ctx context.Context, userID uint64) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) SaveSelection(ctx context.Context, userID uint64, fullName, telephone, shopCode string, marketID, combinationID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveFails > 0 {
		f.saveFails--
		return errors.New("save timeout")
	}
	code, mID, cID := shopCode, marketID, combinationID
	f.rows[userID] = &model.UserProfile{
		UserID: userID, FullName: fullName, Telephone: telephone,
		SelectedShopCode: &code, SelectedMarketID: &mID, SelectedCombinationID: &cID,
	}
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []queue.ShopClaimedEvent
	err    error
}

func (f *fakePublisher) PublishShopClaimed(ctx context.Context, ev queue.ShopClaimedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// fastPolicy keeps retries in tests instant.
func fastPolicy() retry.Policy { return retry.Fixed(3, 0) }

func request(userID, comboID uint64) Request {
	return Request{
		UserID:        userID,
		CombinationID: comboID,
		MarketID:      1,
		BlockLetter:   "B",
		ShopNumber:    52,
		FullName:      "Akmal Karimov",
		Telephone:     "+998901234567",
	}
}

// ----- tests -----

func TestClaimCommits(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	pub := &fakePublisher{}
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil,
		WithRetryPolicy(fastPolicy()), WithPublisher(pub))

	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, "B52", res.ShopCode)
	assert.Equal(t, uint64(1), res.MarketID)

	p, err := profiles.GetByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, p.SetupCompleted())
	require.NotNil(t, p.SelectedShopCode)
	assert.Equal(t, "B52", *p.SelectedShopCode)

	require.Len(t, pub.events, 1)
	assert.Equal(t, uint64(7), pub.events[0].UserID)
	assert.Equal(t, "B52", pub.events[0].ShopCode)
}

func TestClaimIsPermanent(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	_, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)

	// A second claim is refused even for the very same slot.
	_, err = coord.Claim(context.Background(), request(7, cb.ID))
	assert.ErrorIs(t, err, ErrSetupCompleted)

	// And for a different one.
	other := combos.addRow(1, "C", 10)
	_, err = coord.Claim(context.Background(), request(7, other.ID))
	assert.ErrorIs(t, err, ErrSetupCompleted)
}

func TestClaimTakenSlot(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	_, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)

	res, err := coord.Claim(context.Background(), request(8, cb.ID))
	assert.ErrorIs(t, err, ErrShopTaken)
	assert.Equal(t, StatePending, res.State)

	// Loser's profile stays untouched.
	_, err = profiles.GetByUserID(context.Background(), 8)
	assert.ErrorIs(t, err, repository.ErrProfileNotFound)
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Claim(context.Background(), request(uint64(100+i), cb.ID))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrShopTaken)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer must win the slot")
}

func TestClaimRetriesAfterSlotReleased(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	_, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)

	// After an administrative release the slot can be claimed again.
	require.NoError(t, coord.Release(context.Background(), 7, cb.ID))
	_, err = coord.Claim(context.Background(), request(8, cb.ID))
	require.NoError(t, err)
}

func TestClaimReclaimAfterFailedProfileWrite(t *testing.T) {
	// A claim whose profile write failed must be repeatable by the same
	// user: the guard accepts a row already held by the claimant.
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	combos.releaseErr = errors.New("release down")
	profiles.saveFails = 1

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	_, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.ErrorIs(t, err, ErrInconsistent) // slot stays claimed, no profile

	combos.releaseErr = nil
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
}

func TestClaimOptimisticFallbackOnReadFailure(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	combos.readFails = 3 // every re-read attempt fails

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	// Slot identity comes from the request when the row is unreadable.
	assert.Equal(t, "B52", res.ShopCode)
	assert.Equal(t, 3, combos.readCalls)
}

func TestClaimWriteRetriesTransientFailures(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	combos.claimFails = 2 // first two write attempts time out

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, 3, combos.claimCalls)
}

func TestClaimWriteExhaustsRetries(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	combos.claimFails = 5 // more failures than attempts

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	assert.ErrorIs(t, err, ErrClaimFailed)
	assert.Equal(t, StatePending, res.State)
}

func TestClaimCompensatesFailedProfileWrite(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	profiles.saveFails = 1

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	assert.ErrorIs(t, err, ErrClaimFailed)
	assert.Equal(t, StateRolledBack, res.State)

	// The compensating release freed the slot for others.
	got, err := combos.GetByID(context.Background(), cb.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SelectedBy)
}

func TestClaimInconsistentWhenCompensationFails(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	profiles.saveFails = 1
	combos.releaseErr = errors.New("release down")

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, StateClaimed, res.State)
}

func TestClaimDefaultsFullName(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))
	req := request(7, cb.ID)
	req.FullName = ""
	_, err := coord.Claim(context.Background(), req)
	require.NoError(t, err)

	p, err := profiles.GetByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Admin User", p.FullName)
}

func TestClaimPublishFailureDoesNotFailClaim(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	pub := &fakePublisher{err: errors.New("broker down")}

	coord := New(combos, profiles, nil,
		WithRetryPolicy(fastPolicy()), WithPublisher(pub))
	res, err := coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
}

func TestClaimRecachesProfile(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)
	pc := cache.NewProfileCache(profiles, time.Minute)

	// Warm the cache with the pre-setup absence.
	p, err := pc.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Nil(t, p)

	coord := New(combos, profiles, pc, WithRetryPolicy(fastPolicy()))
	_, err = coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)

	// The committed claim must be visible through the cache immediately,
	// without waiting out the stale absence entry.
	p, err = pc.Get(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.SetupCompleted())
}

func TestCheckAvailability(t *testing.T) {
	combos := newFakeCombos()
	profiles := newFakeProfiles()
	cb := combos.addRow(1, "B", 52)

	coord := New(combos, profiles, nil, WithRetryPolicy(fastPolicy()))

	avail, err := coord.CheckAvailability(context.Background(), 1, "B52")
	require.NoError(t, err)
	assert.True(t, avail.Available)

	_, err = coord.Claim(context.Background(), request(7, cb.ID))
	require.NoError(t, err)

	avail, err = coord.CheckAvailability(context.Background(), 1, "B52")
	require.NoError(t, err)
	assert.False(t, avail.Available)
	require.NotNil(t, avail.SelectedBy)
	assert.Equal(t, uint64(7), *avail.SelectedBy)
}

func TestCheckAvailabilityFailOpen(t *testing.T) {
	combos := newFakeCombos()
	combos.probeFails = 10

	coord := New(combos, newFakeProfiles(), nil, WithRetryPolicy(fastPolicy()))
	avail, err := coord.CheckAvailability(context.Background(), 1, "B52")
	require.NoError(t, err)
	assert.True(t, avail.Available, "fail-open reports the slot as free")
}

func TestCheckAvailabilityFailClosed(t *testing.T) {
	combos := newFakeCombos()
	combos.probeFails = 10

	coord := New(combos, newFakeProfiles(), nil,
		WithRetryPolicy(fastPolicy()), WithFailOpen(false))
	avail, err := coord.CheckAvailability(context.Background(), 1, "B52")
	require.Error(t, err)
	assert.False(t, avail.Available)
}

func TestCheckAvailabilityRetriesTransientProbe(t *testing.T) {
	combos := newFakeCombos()
	combos.addRow(1, "B", 52)
	combos.probeFails = 2 // fails twice, succeeds on the third attempt

	coord := New(combos, newFakeProfiles(), nil, WithRetryPolicy(fastPolicy()))
	avail, err := coord.CheckAvailability(context.Background(), 1, "B52")
	require.NoError(t, err)
	assert.True(t, avail.Available)
}

func TestEnsureCombinationIdempotent(t *testing.T) {
	combos := newFakeCombos()
	coord := New(combos, newFakeProfiles(), nil, WithRetryPolicy(fastPolicy()))

	id1, err := coord.EnsureCombination(context.Background(), 1, "B", 52)
	require.NoError(t, err)
	id2, err := coord.EnsureCombination(context.Background(), 1, "B", 52)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := coord.EnsureCombination(context.Background(), 1, "C", 52)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}
