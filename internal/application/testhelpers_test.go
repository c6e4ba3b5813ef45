package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/adapter"
	"github.com/storefront-hq/service-billing/internal/application"
	storeDomain "github.com/storefront-hq/service-billing/internal/domain/store"
	subDomain "github.com/storefront-hq/service-billing/internal/domain/subscription"
	"github.com/storefront-hq/service-billing/pkg/domain"
)

// fakeSubscriptionRepo is an in-memory subscription.Repository. Save enforces
// the provider_subscription_id uniqueness the real schema guarantees.
type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*subDomain.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{byID: make(map[uuid.UUID]*subDomain.Subscription)}
}

func (f *fakeSubscriptionRepo) Save(ctx context.Context, s *subDomain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ProviderSubscriptionID() != "" {
		for _, existing := range f.byID {
			if existing.ProviderSubscriptionID() == s.ProviderSubscriptionID() {
				return domain.NewConflictError(
					"subscription already exists for provider subscription id " + s.ProviderSubscriptionID())
			}
		}
	}
	f.byID[s.ID()] = s
	return nil
}

func (f *fakeSubscriptionRepo) Update(ctx context.Context, s *subDomain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[s.ID()]; !ok {
		return domain.NewNotFoundError("Subscription", s.ID().String())
	}
	f.byID[s.ID()] = s
	return nil
}

func (f *fakeSubscriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*subDomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError("Subscription", id.String())
	}
	return s, nil
}

func (f *fakeSubscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, providerSubID string) (*subDomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.ProviderSubscriptionID() == providerSubID {
			return s, nil
		}
	}
	return nil, domain.NewNotFoundError("Subscription", providerSubID)
}

func (f *fakeSubscriptionRepo) FindByStoreID(ctx context.Context, storeID uuid.UUID) (*subDomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *subDomain.Subscription
	for _, s := range f.byID {
		if s.StoreID() != storeID {
			continue
		}
		if latest == nil || s.CreatedAt().After(latest.CreatedAt()) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.NewNotFoundError("Subscription", storeID.String())
	}
	return latest, nil
}

func (f *fakeSubscriptionRepo) FindDueForCancellation(ctx context.Context, asOf time.Time) ([]*subDomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*subDomain.Subscription
	for _, s := range f.byID {
		if s.CancelAtPeriodEnd() && s.Status() != subDomain.StatusCancelled && !s.CurrentPeriodEnd().After(asOf) {
			due = append(due, s)
		}
	}
	return due, nil
}

func (f *fakeSubscriptionRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// fakeStoreDirectory is an in-memory store.Directory.
type fakeStoreDirectory struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*storeDomain.Store
}

func newFakeStoreDirectory() *fakeStoreDirectory {
	return &fakeStoreDirectory{byID: make(map[uuid.UUID]*storeDomain.Store)}
}

func (f *fakeStoreDirectory) add(s *storeDomain.Store) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.ID()] = s
}

func (f *fakeStoreDirectory) FindByID(ctx context.Context, id uuid.UUID) (*storeDomain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError("Store", id.String())
	}
	return s, nil
}

func (f *fakeStoreDirectory) UpdatePaidFlag(ctx context.Context, s *storeDomain.Store) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[s.ID()]; !ok {
		return domain.NewNotFoundError("Store", s.ID().String())
	}
	f.byID[s.ID()] = s
	return nil
}

func (f *fakeStoreDirectory) isPaid(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	return ok && s.IsPaid()
}

// fakeUnitOfWork hands the fakes straight to the callback; transactional
// semantics are covered by the integration test against a real database.
type fakeUnitOfWork struct {
	subs   *fakeSubscriptionRepo
	stores *fakeStoreDirectory
}

func (f *fakeUnitOfWork) Execute(ctx context.Context, fn func(subs subDomain.Repository, stores storeDomain.Directory) error) error {
	return fn(f.subs, f.stores)
}

// cancelCall records one gateway cancellation request.
type cancelCall struct {
	providerSubID string
	immediate     bool
}

// fakeGateway is a configurable adapter.PaymentGateway.
type fakeGateway struct {
	mu          sync.Mutex
	checkoutURL string
	checkoutErr error
	snapshot    adapter.SubscriptionSnapshot
	snapshotErr error
	cancelErr   error
	cancelCalls []cancelCall
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, params adapter.CheckoutParams) (string, error) {
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.checkoutURL, nil
}

func (f *fakeGateway) GetSubscriptionSnapshot(ctx context.Context, providerSubID string) (adapter.SubscriptionSnapshot, error) {
	if f.snapshotErr != nil {
		return adapter.SubscriptionSnapshot{}, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeGateway) VerifyAndDecodeEvent(payload []byte, signatureHeader string) (adapter.Event, error) {
	return adapter.UnrecognizedEvent{Kind: "fake.event"}, nil
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, providerSubID string, immediate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelCalls = append(f.cancelCalls, cancelCall{providerSubID: providerSubID, immediate: immediate})
	return nil
}

// recordingPublisher counts published billing events by type.
type recordingPublisher struct {
	mu        sync.Mutex
	created   int
	updated   int
	cancelled int
}

func (p *recordingPublisher) SubscriptionCreated(ctx context.Context, sub *subDomain.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
}

func (p *recordingPublisher) SubscriptionUpdated(ctx context.Context, sub *subDomain.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated++
}

func (p *recordingPublisher) SubscriptionCancelled(ctx context.Context, sub *subDomain.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled++
}

// testStack bundles a fully wired service with its fakes.
type testStack struct {
	service    *application.SubscriptionService
	reconciler *application.WebhookReconciler
	subs       *fakeSubscriptionRepo
	stores     *fakeStoreDirectory
	gateway    *fakeGateway
	publisher  *recordingPublisher
}

func newTestStack() *testStack {
	subs := newFakeSubscriptionRepo()
	stores := newFakeStoreDirectory()
	gateway := &fakeGateway{checkoutURL: "https://checkout.example.test/pay/cs_1"}
	publisher := &recordingPublisher{}
	uow := &fakeUnitOfWork{subs: subs, stores: stores}

	service := application.NewSubscriptionService(uow, subs, stores, gateway, publisher, zap.NewNop())
	reconciler := application.NewWebhookReconciler(service, subs, gateway, zap.NewNop())

	return &testStack{
		service:    service,
		reconciler: reconciler,
		subs:       subs,
		stores:     stores,
		gateway:    gateway,
		publisher:  publisher,
	}
}

// seedStore adds a store with the given paid flag and returns its id.
func (ts *testStack) seedStore(isPaid bool) uuid.UUID {
	id := uuid.New()
	now := time.Now().UTC()
	ts.stores.add(storeDomain.Reconstitute(id, "Test Store", isPaid, now, now))
	return id
}
