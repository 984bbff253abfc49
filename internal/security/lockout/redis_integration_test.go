package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	redisclient "github.com/aryan0dhankhar/tenantauth/internal/infrastructure/redis"
)

func TestRedisGuard_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("could not start Redis container: %v", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	client, err := redisclient.NewClient(ctx, endpoint, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	g := NewRedisGuard(client, nil, 2, time.Minute, nil)
	key := Key("tenant-it", "bob@acme.io")

	g.RecordFailure(ctx, key)
	g.RecordFailure(ctx, key)
	if err := g.Check(ctx, key); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("err = %v, want ErrTooManyAttempts", err)
	}

	ttl, err := client.TTL(ctx, key)
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want within the lockout window", ttl)
	}

	g.Reset(ctx, key)
	if err := g.Check(ctx, key); err != nil {
		t.Errorf("after reset: %v", err)
	}
}
