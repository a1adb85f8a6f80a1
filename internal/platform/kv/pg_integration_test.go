//go:build integration_pg
// +build integration_pg

package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func TestPG_GetSetUpdate_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	p, err := OpenPG(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	if _, found, err := p.Get(ctx, "nope"); err != nil || found {
		t.Fatalf("missing key: found=%v err=%v", found, err)
	}

	if err := p.Set(ctx, "k", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, found, err := p.Get(ctx, "k")
	if err != nil || !found || string(v) != `{"n":1}` {
		t.Fatalf("get: %q found=%v err=%v", v, found, err)
	}

	// row-locked updates must not lose increments
	if err := p.Set(ctx, "counter", []byte("0")); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Update(ctx, "counter", func(cur []byte, found bool) ([]byte, error) {
				n, _ := strconv.Atoi(string(cur))
				return []byte(strconv.Itoa(n + 1)), nil
			})
		}()
	}
	wg.Wait()
	v, _, _ = p.Get(ctx, "counter")
	if string(v) != strconv.Itoa(workers) {
		t.Fatalf("lost updates: got %s want %d", v, workers)
	}

	// Update on an untouched key reports found=false
	err = p.Update(ctx, "fresh", func(cur []byte, found bool) ([]byte, error) {
		if found {
			t.Fatalf("expected found=false for fresh key")
		}
		return []byte(`"v1"`), nil
	})
	if err != nil {
		t.Fatalf("update fresh: %v", err)
	}
}
