// Package reservation implements the shop-claim flow: binding one admin to
// exactly one block/shop combination, permanently, in the face of other
// admins racing for the same slot.  The store offers no cross-table
// transaction between the combination claim and the profile write, so the
// two are treated as one logical transaction with a manual compensation
// step, driven by an explicit claim state machine rather than nested error
// handling.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bazaaradmin/internal/cache"
	"bazaaradmin/internal/model"
	"bazaaradmin/internal/queue"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/retry"
	"bazaaradmin/internal/utils"
)

// Claim errors.  Handlers translate these into HTTP statuses; none of them
// is retryable by the caller.
var (
	// ErrSetupCompleted means the user already finished the one-time setup.
	// The selection is permanent; this error never clears.
	ErrSetupCompleted = errors.New("shop setup already completed")

	// ErrShopTaken means another admin holds the slot.  The user must pick
	// a different shop.
	ErrShopTaken = errors.New("shop already taken by another admin")

	// ErrClaimFailed means the claim write kept failing after bounded
	// retries.  The caller must not assume the slot is held.
	ErrClaimFailed = errors.New("claim failed after retries")

	// ErrInconsistent means the compensating release after a failed profile
	// write also failed.  The combination row is left claimed without a
	// matching profile and needs administrative cleanup.
	ErrInconsistent = errors.New("claim left in inconsistent state")
)

// State tracks a claim through the manual saga.
type State int

const (
	StateUnclaimed  State = iota // nothing written yet
	StatePending                 // precondition passed, conflict check running
	StateClaimed                 // combination row updated, profile not yet written
	StateCommitted               // profile written; claim is durable
	StateRolledBack              // profile write failed and the claim was released
)

// String names the state for logs.
func (s State) String() string {
	switch s {
	case StateUnclaimed:
		return "unclaimed"
	case StatePending:
		return "pending"
	case StateClaimed:
		return "claimed"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CombinationStore is the slice of the combination repository the
// coordinator needs.  *repository.CombinationRepo satisfies it.
type CombinationStore interface {
	Ensure(ctx context.Context, marketID uint64, blockLetter string, shopNumber int, blockShopCode string) (uint64, error)
	CheckAvailability(ctx context.Context, marketID uint64, blockShopCode string) (repository.Availability, error)
	GetByID(ctx context.Context, id uint64) (*model.Combination, error)
	Claim(ctx context.Context, id, userID uint64, at time.Time) (bool, error)
	Release(ctx context.Context, id, userID uint64) error
}

// ProfileStore is the slice of the profile repository the coordinator
// needs.  *repository.ProfileRepo satisfies it.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uint64) (*model.UserProfile, error)
	SaveSelection(ctx context.Context, userID uint64, fullName, telephone, shopCode string, marketID, combinationID uint64) error
}

// Publisher emits the shop.claimed event after a committed claim.  It is
// best-effort: publish failures are logged, never surfaced.
type Publisher interface {
	PublishShopClaimed(ctx context.Context, ev queue.ShopClaimedEvent) error
}

// Request carries everything a claim needs.  MarketID, BlockLetter and
// ShopNumber come from the setup form; they let the claim proceed even when
// the freshly created combination row cannot be re-read in time.  FullName
// and Telephone feed the profile insert when registration never created one.
type Request struct {
	UserID        uint64
	CombinationID uint64
	MarketID      uint64
	BlockLetter   string
	ShopNumber    int
	FullName      string
	Telephone     string
}

// Result reports the terminal state of a claim together with the resolved
// slot identity.
type Result struct {
	State         State
	CombinationID uint64
	MarketID      uint64
	ShopCode      string
}

// Coordinator runs the claim saga.  One instance is shared by all requests.
type Coordinator struct {
	combos   CombinationStore
	profiles ProfileStore
	cache    *cache.ProfileCache
	pub      Publisher

	policy   retry.Policy
	failOpen bool
	now      func() time.Time
}

// Option tweaks a Coordinator at construction.
type Option func(*Coordinator)

// WithRetryPolicy overrides the bounded-retry policy used for the claim
// read and write paths.  The default is three attempts, 200 ms apart.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithFailOpen sets the availability-probe policy.  When true (the default)
// a probe that keeps failing reports the slot as available, so a flaky read
// cannot permanently hide a slot from the picker; the cost is a possibly
// stale display.  The claim write still decides the real winner.
func WithFailOpen(v bool) Option {
	return func(c *Coordinator) { c.failOpen = v }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithPublisher attaches the event publisher.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.pub = p }
}

// New constructs a Coordinator.  The profile cache may be nil in tests.
func New(combos CombinationStore, profiles ProfileStore, pc *cache.ProfileCache, opts ...Option) *Coordinator {
	c := &Coordinator{
		combos:   combos,
		profiles: profiles,
		cache:    pc,
		policy:   retry.Fixed(3, 200*time.Millisecond),
		failOpen: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureCombination idempotently creates-or-fetches the combination row for
// the slot and returns its id.  Safe under concurrent invocation for the
// same code: the stored procedure makes the check-and-insert atomic.
func (c *Coordinator) EnsureCombination(ctx context.Context, marketID uint64, blockLetter string, shopNumber int) (uint64, error) {
	code := utils.BuildShopCode(blockLetter, shopNumber)
	return c.combos.Ensure(ctx, marketID, blockLetter, shopNumber, code)
}

// CheckAvailability probes one slot without creating rows.  Transient read
// failures are retried; after exhaustion the configured fail-open policy
// decides whether the slot is reported available or taken.
func (c *Coordinator) CheckAvailability(ctx context.Context, marketID uint64, blockShopCode string) (repository.Availability, error) {
	var avail repository.Availability
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var probeErr error
		avail, probeErr = c.combos.CheckAvailability(ctx, marketID, blockShopCode)
		return probeErr
	})
	if err != nil {
		log.Printf("reservation: availability probe for market=%d code=%s failed: %v (fail-open=%t)",
			marketID, blockShopCode, err, c.failOpen)
		if c.failOpen {
			return repository.Availability{Available: true, BlockShopCode: blockShopCode}, nil
		}
		return repository.Availability{Available: false, BlockShopCode: blockShopCode}, err
	}
	return avail, nil
}

// Claim binds the user to the combination, exactly once.  The saga:
//
//	precondition -> re-read -> conflict check -> conditional write -> profile write
//
// with a compensating release when the profile write fails.  Repeats by the
// same user for a slot they already hold succeed as no-ops.
func (c *Coordinator) Claim(ctx context.Context, req Request) (Result, error) {
	res := Result{State: StateUnclaimed, CombinationID: req.CombinationID, MarketID: req.MarketID}

	// Precondition: the one-time rule.  A profile with any selection is
	// permanent and rejects every further claim, whatever the target.
	profile, err := c.profiles.GetByUserID(ctx, req.UserID)
	if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
		return res, err
	}
	if profile.SetupCompleted() {
		return res, ErrSetupCompleted
	}
	res.State = StatePending

	// Re-read the combination row with bounded retry to absorb read lag
	// right after EnsureCombination's write.  When every attempt fails the
	// claim proceeds on the assumption the row was just created by this
	// same request; the conditional write below still decides the winner.
	var combo *model.Combination
	readErr := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		combo, err = c.combos.GetByID(ctx, req.CombinationID)
		return err
	})
	if readErr != nil {
		log.Printf("reservation: user=%d combination=%d not readable after retries: %v; proceeding optimistically",
			req.UserID, req.CombinationID, readErr)
		combo = nil
	}

	shopCode := utils.BuildShopCode(req.BlockLetter, req.ShopNumber)
	marketID := req.MarketID
	if combo != nil {
		if combo.ClaimedByOther(req.UserID) {
			return res, ErrShopTaken
		}
		// Prefer the row's own identity over the request when we have it.
		shopCode = combo.BlockShopCode
		marketID = combo.MarketID
		res.MarketID = marketID
	}
	res.ShopCode = shopCode

	// Conditional write: the WHERE guard makes the first successful writer
	// the winner.  A guard miss is a conflict, not a transient failure, so
	// it stops the retry loop immediately.
	claimed := false
	writeErr := c.policy.Do(ctx, func(ctx context.Context) error {
		ok, err := c.combos.Claim(ctx, req.CombinationID, req.UserID, c.now())
		if err != nil {
			return err
		}
		claimed = ok
		return nil
	})
	if writeErr != nil {
		log.Printf("reservation: user=%d combination=%d claim write exhausted retries: %v",
			req.UserID, req.CombinationID, writeErr)
		return res, fmt.Errorf("%w: %v", ErrClaimFailed, writeErr)
	}
	if !claimed {
		return res, ErrShopTaken
	}
	res.State = StateClaimed

	// Profile write.  Failure here must not leave the slot claimed, so the
	// claim is released as compensation before surfacing the error.
	fullName := req.FullName
	if fullName == "" {
		fullName = "Admin User"
	}
	if saveErr := c.profiles.SaveSelection(ctx, req.UserID, fullName, req.Telephone, shopCode, marketID, req.CombinationID); saveErr != nil {
		if relErr := c.combos.Release(ctx, req.CombinationID, req.UserID); relErr != nil {
			// Compensation failed: the row stays claimed with no profile.
			// Logged for manual cleanup; retrying forever here would be an
			// unbounded loop on a store that is already misbehaving.
			log.Printf("reservation: user=%d combination=%d compensation failed: save=%v release=%v",
				req.UserID, req.CombinationID, saveErr, relErr)
			return res, fmt.Errorf("%w: profile write failed (%v) and release failed (%v)",
				ErrInconsistent, saveErr, relErr)
		}
		res.State = StateRolledBack
		return res, fmt.Errorf("%w: profile write failed: %v", ErrClaimFailed, saveErr)
	}
	res.State = StateCommitted

	c.recache(ctx, req.UserID)
	c.publish(ctx, req.UserID, marketID, req.CombinationID, shopCode)
	return res, nil
}

// Release is the compensating action: it clears the user's claim on the
// combination.  It is not exposed as a user-facing unclaim.
func (c *Coordinator) Release(ctx context.Context, userID, combinationID uint64) error {
	if err := c.combos.Release(ctx, combinationID, userID); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Invalidate(userID)
	}
	return nil
}

// recache refreshes the claimant's cache entry so the dashboard sees the
// completed setup immediately instead of a stale "no profile" result.
func (c *Coordinator) recache(ctx context.Context, userID uint64) {
	if c.cache == nil {
		return
	}
	p, err := c.profiles.GetByUserID(ctx, userID)
	if err != nil {
		c.cache.Invalidate(userID)
		return
	}
	c.cache.Put(userID, p)
}

// publish emits the shop.claimed event.  Best-effort only.
func (c *Coordinator) publish(ctx context.Context, userID, marketID, combinationID uint64, shopCode string) {
	if c.pub == nil {
		return
	}
	ev := queue.ShopClaimedEvent{
		UserID:        userID,
		MarketID:      marketID,
		CombinationID: combinationID,
		ShopCode:      shopCode,
		ClaimedAt:     c.now().UTC().Format(time.RFC3339),
	}
	if err := c.pub.PublishShopClaimed(ctx, ev); err != nil {
		log.Printf("reservation: shop.claimed publish failed for user=%d: %v", userID, err)
	}
}
