//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storefront-hq/service-billing/internal/adapter"
	"github.com/storefront-hq/service-billing/internal/application"
	"github.com/storefront-hq/service-billing/internal/domain/subscription"
	billingEvents "github.com/storefront-hq/service-billing/internal/events"
	"github.com/storefront-hq/service-billing/internal/handler"
	"github.com/storefront-hq/service-billing/internal/repository"
	"github.com/storefront-hq/service-billing/pkg/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// billingStack holds the wired-up billing service components behind an HTTP
// router, driven the same way production traffic drives them.
type billingStack struct {
	Router          *gin.Engine
	Gateway         *scriptedGateway
	Service         *application.SubscriptionService
	CleanupProducer func()
}

// scriptedGateway is a PaymentGateway whose webhook decoding returns a
// preloaded event, so tests control exactly what the provider "sent" without
// reproducing Stripe's signing.
type scriptedGateway struct {
	mu        sync.Mutex
	nextEvent adapter.Event
	snapshot  adapter.SubscriptionSnapshot
}

func (g *scriptedGateway) load(event adapter.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextEvent = event
}

func (g *scriptedGateway) CreateCheckoutSession(ctx context.Context, params adapter.CheckoutParams) (string, error) {
	return "https://checkout.example.test/pay/cs_integration", nil
}

func (g *scriptedGateway) GetSubscriptionSnapshot(ctx context.Context, providerSubID string) (adapter.SubscriptionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snapshot := g.snapshot
	snapshot.ProviderSubscriptionID = providerSubID
	return snapshot, nil
}

func (g *scriptedGateway) VerifyAndDecodeEvent(payload []byte, signatureHeader string) (adapter.Event, error) {
	if signatureHeader == "" {
		return nil, adapter.ErrInvalidSignature
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextEvent, nil
}

func (g *scriptedGateway) CancelSubscription(ctx context.Context, providerSubID string, immediate bool) error {
	return nil
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_billing",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_billing sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping. TranslateError is on so
	// unique index violations surface as gorm.ErrDuplicatedKey, exactly as in
	// production.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.AutoMigrate(&repository.StoreModel{}, &repository.SubscriptionModel{}))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, billingEvents.TopicBillingEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupBillingStack wires up the full billing service stack behind a router.
func setupBillingStack(t *testing.T, db *gorm.DB, brokers []string) *billingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	gateway := &scriptedGateway{
		snapshot: adapter.SubscriptionSnapshot{
			ProviderCustomerID: "cus_integration",
			PlanID:             "price_pro_monthly",
			PlanName:           "Pro Plan",
			Status:             "active",
			PeriodStart:        start,
			PeriodEnd:          end,
			Price:              decimal.New(2999, -2),
			NextPayment:        &end,
		},
	}

	subRepo := repository.NewGormSubscriptionRepository(db)
	storeRepo := repository.NewGormStoreRepository(db)
	uow := repository.NewGormUnitOfWork(db)

	producer := kafka.NewProducer(brokers, logger)
	publisher := billingEvents.NewBillingEventPublisher(producer, logger)

	service := application.NewSubscriptionService(uow, subRepo, storeRepo, gateway, publisher, logger)
	reconciler := application.NewWebhookReconciler(service, subRepo, gateway, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.NewWebhookHandler(gateway, reconciler, logger).RegisterRoutes(router)

	return &billingStack{
		Router:          router,
		Gateway:         gateway,
		Service:         service,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// createRequest builds a PAID subscription request against a seeded store.
func createRequest(storeID uuid.UUID, providerSubID string) application.CreateSubscriptionRequest {
	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	return application.CreateSubscriptionRequest{
		StoreID:                storeID,
		PlanName:               "Pro Plan",
		PlanID:                 "price_pro_monthly",
		Provider:               "stripe",
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       end,
		Price:                  decimal.New(2999, -2),
		Status:                 subscription.StatusPaid,
		NextPayment:            &end,
		ProviderSubscriptionID: providerSubID,
		ProviderCustomerID:     "cus_integration",
	}
}

// seedStore inserts a store row and returns its id.
func seedStore(t *testing.T, db *gorm.DB, isPaid bool) uuid.UUID {
	t.Helper()
	storeID := uuid.New()
	now := time.Now().UTC()
	model := repository.StoreModel{
		ID:        storeID,
		Name:      fmt.Sprintf("Store %s", storeID.String()[:8]),
		IsPaid:    isPaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed store")
	return storeID
}

// deliverWebhook loads the gateway with an event and posts it through the
// HTTP webhook endpoint, returning the response status code.
func deliverWebhook(t *testing.T, stack *billingStack, event adapter.Event) int {
	t.Helper()
	stack.Gateway.load(event)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{"id":"evt_integration"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=scripted")
	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	return rec.Code
}

// waitForSubscriptionStatus polls the subscriptions table until the row for a
// provider subscription id reaches the expected status.
func waitForSubscriptionStatus(t *testing.T, db *gorm.DB, providerSubID, expectedStatus string, timeout time.Duration) repository.SubscriptionModel {
	t.Helper()
	var result repository.SubscriptionModel
	require.Eventually(t, func() bool {
		var model repository.SubscriptionModel
		err := db.Where("provider_subscription_id = ?", providerSubID).First(&model).Error
		if err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "subscription did not reach status %s", expectedStatus)
	return result
}

// storeIsPaid reads the is_paid flag for a store.
func storeIsPaid(t *testing.T, db *gorm.DB, storeID uuid.UUID) bool {
	t.Helper()
	var model repository.StoreModel
	require.NoError(t, db.Where("id = ?", storeID).First(&model).Error)
	return model.IsPaid
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
