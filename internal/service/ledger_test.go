package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/repository"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(tenantID string) *model.AuditRecord {
	return &model.AuditRecord{
		TenantID:        tenantID,
		ActorID:         "actor",
		ContractID:      "c-1",
		TraceID:         "trace",
		QueryPayload:    json.RawMessage(`{"contract_id":"c-1"}`),
		ResponsePayload: json.RawMessage(`{"verdict":"approved"}`),
		Verdict:         model.VerdictApproved,
		RiskLevel:       model.RiskNone,
	}
}

func TestLedgerAppendLinksChain(t *testing.T) {
	store := repository.NewMemAuditStore()
	ledger := service.NewAuditLedger(store, config.AuditConfig{})
	ctx := context.Background()

	id1, err := ledger.Append(ctx, testRecord("t-1"))
	require.NoError(t, err)
	id2, err := ledger.Append(ctx, testRecord("t-1"))
	require.NoError(t, err)

	rec1, err := ledger.Get(ctx, id1)
	require.NoError(t, err)
	rec2, err := ledger.Get(ctx, id2)
	require.NoError(t, err)

	assert.Equal(t, model.GenesisHash, rec1.PrevHash)
	assert.Equal(t, int64(1), rec1.Seq)
	assert.Equal(t, rec1.RecordHash, rec2.PrevHash)
	assert.Equal(t, int64(2), rec2.Seq)
	assert.Equal(t, rec1.ComputeHash(), rec1.RecordHash)
}

func TestLedgerChainsAreTenantPartitioned(t *testing.T) {
	store := repository.NewMemAuditStore()
	ledger := service.NewAuditLedger(store, config.AuditConfig{})
	ctx := context.Background()

	_, err := ledger.Append(ctx, testRecord("t-1"))
	require.NoError(t, err)
	id, err := ledger.Append(ctx, testRecord("t-2"))
	require.NoError(t, err)

	rec, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	// 另一个租户的第一条记录也从创世哈希起步
	assert.Equal(t, model.GenesisHash, rec.PrevHash)
	assert.Equal(t, int64(1), rec.Seq)
}

func TestLedgerGetRoundTripsPayloads(t *testing.T) {
	store := repository.NewMemAuditStore()
	ledger := service.NewAuditLedger(store, config.AuditConfig{})
	ctx := context.Background()

	in := testRecord("t-1")
	id, err := ledger.Append(ctx, in)
	require.NoError(t, err)

	out, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	// 提交时的原文必须字节不差地读回来
	assert.Equal(t, string(in.QueryPayload), string(out.QueryPayload))
	assert.Equal(t, string(in.ResponsePayload), string(out.ResponsePayload))
}

func TestLedgerGetUnknownID(t *testing.T) {
	ledger := service.NewAuditLedger(repository.NewMemAuditStore(), config.AuditConfig{})
	_, err := ledger.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, service.ErrAuditNotFound)
}

func TestLedgerVerifyChain(t *testing.T) {
	store := repository.NewMemAuditStore()
	ledger := service.NewAuditLedger(store, config.AuditConfig{})
	ctx := context.Background()

	var lastID string
	for i := 0; i < 5; i++ {
		id, err := ledger.Append(ctx, testRecord("t-1"))
		require.NoError(t, err)
		lastID = id
	}

	ok, err := ledger.VerifyChain(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, ok, "untouched chain must verify")

	// 空链平凡有效
	ok, err = ledger.VerifyChain(ctx, "t-unknown")
	require.NoError(t, err)
	assert.True(t, ok)

	// 篡改已提交记录后校验必须失败
	require.True(t, store.Tamper(lastID, func(rec *model.AuditRecord) {
		rec.Verdict = model.VerdictDenied
	}))
	ok, err = ledger.VerifyChain(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, ok, "tampered chain must fail verification")
}

func TestLedgerConcurrentAppendsKeepChainIntact(t *testing.T) {
	store := repository.NewMemAuditStore()
	ledger := service.NewAuditLedger(store, config.AuditConfig{AppendRetries: 50})
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Append(ctx, testRecord("t-1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ok, err := ledger.VerifyChain(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, ok)

	records, err := ledger.List(ctx, "t-1", 0)
	require.NoError(t, err)
	assert.Len(t, records, writers)
}

func TestLedgerSubscribeReceivesAppends(t *testing.T) {
	ledger := service.NewAuditLedger(repository.NewMemAuditStore(), config.AuditConfig{})
	ch, cancel := ledger.Subscribe("t-1")
	defer cancel()

	id, err := ledger.Append(context.Background(), testRecord("t-1"))
	require.NoError(t, err)

	// 其他租户的提交不应出现在这个订阅里
	_, err = ledger.Append(context.Background(), testRecord("t-2"))
	require.NoError(t, err)

	select {
	case rec := <-ch:
		assert.Equal(t, id, rec.AuditID)
	case <-time.After(time.Second):
		t.Fatal("no record pushed to subscriber")
	}
	select {
	case rec := <-ch:
		t.Fatalf("unexpected cross-tenant push: %s", rec.TenantID)
	default:
	}
}
