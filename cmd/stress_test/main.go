package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/handler"
	"github.com/rl1809/scrap-lifecycle/internal/adapter/storage"
	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/core/service"
)

const (
	totalRequests = 200
	replays       = 20
)

// Runs concurrent transitions against one lot over gRPC. With
// STRESS_GRPC_ADDR and STRESS_LOT_ID set it targets a running server;
// otherwise it starts one in process on a memory store, using Redis at
// REDIS_ADDR for idempotency when reachable.
func main() {
	ctx := context.Background()

	addr, lotID := os.Getenv("STRESS_GRPC_ADDR"), int64(0)
	local, dedup := addr == "", false
	if !local {
		id, err := strconv.ParseInt(os.Getenv("STRESS_LOT_ID"), 10, 64)
		if err != nil || id <= 0 {
			log.Fatalf("STRESS_LOT_ID must be a lot id when STRESS_GRPC_ADDR is set")
		}
		lotID = id
	} else {
		var stop func()
		addr, lotID, dedup, stop = startLocal(ctx)
		defer stop()
	}

	conn, err := handler.DialLifecycle(addr)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", addr, err)
	}
	defer conn.Close()
	client := handler.NewLifecycleClient(conn)

	stages := domain.Stages()
	requested := make(map[string]bool, len(stages))
	requestIDs := make([]string, totalRequests)
	for i := range requestIDs {
		requestIDs[i] = uuid.NewString()
	}

	var successCount, failCount, duplicateCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	send := func(i int) {
		defer wg.Done()
		stage := string(stages[i%len(stages)])
		_, err := client.UpdateLifecycle(ctx, &handler.UpdateLifecycleRequest{
			InventoryID:      lotID,
			UpdatedBy:        int64(i%17 + 1),
			RequestID:        requestIDs[i%totalRequests],
			LifecyclePayload: handler.LifecyclePayload{LifecycleStage: &stage},
		})
		switch {
		case err == nil:
			successCount.Add(1)
		case status.Code(err) == codes.AlreadyExists:
			duplicateCount.Add(1)
		default:
			failCount.Add(1)
			log.Printf("request %d: %v", i, err)
		}
	}

	for _, st := range stages {
		requested[string(st)] = true
	}
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go send(i)
	}
	wg.Wait()

	// Replay request ids that already succeeded.
	if dedup {
		for i := 0; i < replays; i++ {
			wg.Add(1)
			go send(i)
		}
		wg.Wait()
	}
	elapsed := time.Since(start)

	history, err := client.ListHistory(ctx, &handler.ListHistoryRequest{InventoryID: &lotID})
	if err != nil {
		log.Fatalf("failed to list history: %v", err)
	}
	lot, err := client.GetLot(ctx, &handler.GetLotRequest{ID: lotID})
	if err != nil {
		log.Fatalf("failed to get lot: %v", err)
	}

	success, fail, duplicates := successCount.Load(), failCount.Load(), duplicateCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Target:           %s (lot %d)\n", addr, lotID)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duplicates:       %d\n", duplicates)
	fmt.Printf("Audit Entries:    %d\n", len(history.Entries))
	fmt.Printf("Final Stage:      %s (v%d)\n", lot.LifecycleStage, lot.Version)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	passed := true
	if dedup && duplicates != replays {
		fmt.Printf("FAIL: Expected %d duplicate rejections, got %d\n", replays, duplicates)
		passed = false
	}
	// A remote lot may carry history from earlier runs.
	if (local && len(history.Entries) != int(success)) || len(history.Entries) < int(success) {
		fmt.Printf("FAIL: Expected %d audit entries, got %d\n", success, len(history.Entries))
		passed = false
	}
	if !requested[lot.LifecycleStage] {
		fmt.Printf("FAIL: Final stage %q was never requested\n", lot.LifecycleStage)
		passed = false
	}
	if passed {
		fmt.Println("PASS: One audit entry per committed transition")
	} else {
		os.Exit(1)
	}
}

func startLocal(ctx context.Context) (addr string, lotID int64, dedup bool, stop func()) {
	store := storage.NewMemoryAdapter(nil)
	lot, err := store.CreateLot(ctx, domain.NewLot{
		ItemID:    "stress-" + uuid.NewString()[:8],
		MetalType: "copper",
		Grade:     "Birch/Cliff",
		Quantity:  decimal.NewFromInt(1000),
		Unit:      "kg",
	})
	if err != nil {
		log.Fatalf("failed to seed lot: %v", err)
	}

	opts := []service.Option{service.WithMaxRetries(totalRequests)}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	cache := storage.NewRedisAdapter(rdb, time.Minute)
	if err := cache.Ping(ctx); err == nil {
		opts = append(opts, service.WithCache(cache))
		dedup = true
	} else {
		log.Printf("redis unavailable, skipping duplicate replay: %v", err)
	}

	lifecycle := service.NewLifecycleService(store, opts...)
	stats := service.NewStatsService(store, nil, nil)
	srv, _ := handler.NewGRPCServer(handler.NewGRPCHandler(lifecycle, stats), nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()

	return lis.Addr().String(), lot.ID, dedup, func() {
		srv.GracefulStop()
		_ = rdb.Close()
	}
}
