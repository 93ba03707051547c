package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wallet_settlement/internal/fees"
	"wallet_settlement/internal/models"
	"wallet_settlement/internal/notify"
	"wallet_settlement/internal/repository"
	"wallet_settlement/internal/service"
	"wallet_settlement/internal/testutil"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	pool        *pgxpool.Pool
	wallets     *service.WalletService
	deposits    *service.DepositService
	withdrawals *service.WithdrawalService
	earnings    *service.EarningsService

	mu     sync.Mutex
	events []notify.Args
}

func (s *stack) enqueue(_ context.Context, args notify.Args) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, args)
	return nil
}

func (s *stack) notified(event notify.Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// newStack wires the services against a fresh database. M-Pesa withdrawals
// carry a flat $5 fee.
func newStack(t *testing.T) *stack {
	pool, teardown := testutil.SetupTestDB(t)
	t.Cleanup(teardown)

	s := &stack{pool: pool}
	store := repository.NewStore(pool, testLogger)
	walletRepo := repository.NewWalletPGRepository(pool, testLogger)
	depositRepo := repository.NewDepositPGRepository(pool, testLogger)
	withdrawalRepo := repository.NewWithdrawalPGRepository(pool, testLogger)
	earningsRepo := repository.NewEarningsPGRepository(pool, testLogger)
	feeTable := &fees.Table{
		Methods: map[string]fees.Rule{"mpesa": {Flat: decimal.NewFromInt(5)}},
	}
	notifier := notify.NewNotifier(s.enqueue, testLogger)

	s.wallets = service.NewWalletService(store, walletRepo, nil, testLogger)
	s.deposits = service.NewDepositService(store, depositRepo, walletRepo, notifier, nil, testLogger)
	s.withdrawals = service.NewWithdrawalService(store, withdrawalRepo, walletRepo, earningsRepo, feeTable, notifier, nil, testLogger)
	s.earnings = service.NewEarningsService(store, earningsRepo, nil, testLogger)
	return s
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var mpesaDetails = json.RawMessage(`{"phone":"+254700000000"}`)

func (s *stack) fund(t *testing.T, userID uuid.UUID, walletType models.WalletType, amount string) {
	t.Helper()
	_, applied, err := s.wallets.Credit(context.Background(), userID, walletType, dec(amount), "seed:"+uuid.NewString())
	require.NoError(t, err)
	require.True(t, applied)
}

func (s *stack) balance(t *testing.T, userID uuid.UUID, walletType models.WalletType) decimal.Decimal {
	t.Helper()
	b, err := s.wallets.GetBalance(context.Background(), userID, walletType)
	require.NoError(t, err)
	return b
}

func (s *stack) earningsCount(t *testing.T, ref uuid.UUID) int {
	t.Helper()
	var n int
	err := s.pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM earnings WHERE reference_id = $1", ref).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestWithdrawal_ReservesOnCreate(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")

	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, w.Status)
	assert.True(t, w.NetAmount.Equal(dec("55")))
	assert.True(t, w.WithdrawalFee.Equal(dec("5")))
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("40")))
}

func TestWithdrawal_ConcurrentCreatesOnlyOneCovered(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")

	var ok, insufficient atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("70"), "mpesa", mpesaDetails)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, repository.ErrInsufficientFunds):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), insufficient.Load())
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("30")))

	list, err := s.withdrawals.List(ctx, repository.RequestFilter{UserID: &userID})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWithdrawal_ManyConcurrentCreatesNeverOverdraw(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	s.fund(t, userID, models.WalletSeller, "100")

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.withdrawals.Create(ctx, userID, models.WalletSeller, dec("10"), "mpesa", mpesaDetails); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.True(t, s.balance(t, userID, models.WalletSeller).IsZero())
}

func TestWithdrawal_RejectRefundsFullAmount(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, adminID := uuid.New(), uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)

	rejected, err := s.withdrawals.Reject(ctx, w.ID, adminID, "invalid details")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, rejected.Status)
	assert.Equal(t, "invalid details", rejected.AdminNotes)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("100")))
	assert.Zero(t, s.earningsCount(t, w.ID))

	_, err = s.withdrawals.Reject(ctx, w.ID, adminID, "again")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)
	_, err = s.withdrawals.Complete(ctx, w.ID, adminID, "MPESA-LATE", "")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("100")))
	assert.Equal(t, 1, s.notified(notify.EventWithdrawalRejected))
}

func TestWithdrawal_CompleteBooksFee(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, adminID := uuid.New(), uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)

	done, err := s.withdrawals.Complete(ctx, w.ID, adminID, "MPESA-ABC123", "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, done.Status)
	assert.Equal(t, "MPESA-ABC123", done.TransactionReference)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 1, s.earningsCount(t, w.ID))
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("40")))

	_, err = s.withdrawals.Complete(ctx, w.ID, adminID, "MPESA-ABC123", "")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)
	assert.Equal(t, 1, s.earningsCount(t, w.ID))
}

func TestWithdrawal_ClaimThenComplete(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, admin1, admin2 := uuid.New(), uuid.New(), uuid.New()
	s.fund(t, userID, models.WalletSeller, "50")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletSeller, dec("20"), "mpesa", mpesaDetails)
	require.NoError(t, err)

	claimed, err := s.withdrawals.Claim(ctx, w.ID, admin1)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, admin1, *claimed.ClaimedBy)

	_, err = s.withdrawals.Claim(ctx, w.ID, admin2)
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)

	done, err := s.withdrawals.Complete(ctx, w.ID, admin1, "MPESA-XYZ", "sent")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, done.Status)
}

func TestWithdrawal_ConcurrentCompleteAndRejectHaveOneWinner(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = s.withdrawals.Complete(ctx, w.ID, uuid.New(), "MPESA-RACE", "")
			} else {
				_, err = s.withdrawals.Reject(ctx, w.ID, uuid.New(), "race")
			}
			if err == nil {
				wins.Add(1)
			} else if assert.ErrorIs(t, err, repository.ErrAlreadyReviewed) {
				losses.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), losses.Load())

	final, err := s.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	balance := s.balance(t, userID, models.WalletBuyer)
	switch final.Status {
	case models.WithdrawalCompleted:
		assert.True(t, balance.Equal(dec("40")))
		assert.Equal(t, 1, s.earningsCount(t, w.ID))
	case models.WithdrawalRejected:
		assert.True(t, balance.Equal(dec("100")))
		assert.Zero(t, s.earningsCount(t, w.ID))
	default:
		t.Fatalf("unexpected status %s", final.Status)
	}
}

func TestWithdrawal_RejectWithoutNotesChangesNothing(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)

	_, err = s.withdrawals.Reject(ctx, w.ID, uuid.New(), "")
	assert.ErrorIs(t, err, service.ErrMissingJustification)

	got, err := s.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, got.Status)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("40")))
}

func TestDeposit_ApproveOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, adminID := uuid.New(), uuid.New()
	s.fund(t, userID, models.WalletBuyer, "40")

	d, err := s.deposits.Create(ctx, userID, dec("200"), "mpesa", "QK12AB34", nil)
	require.NoError(t, err)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("40")))

	approved, err := s.deposits.Approve(ctx, d.ID, adminID, "")
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("240")))

	_, err = s.deposits.Approve(ctx, d.ID, adminID, "")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)
	_, err = s.deposits.Reject(ctx, d.ID, adminID, "")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("240")))
	assert.Equal(t, 1, s.notified(notify.EventDepositApproved))
}

func TestDeposit_ConcurrentApprovalsCreditOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	d, err := s.deposits.Create(ctx, userID, dec("200"), "paypal", "PP-1", nil)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.deposits.Approve(ctx, d.ID, uuid.New(), ""); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("200")))
}

func TestDeposit_RejectLeavesWallet(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	d, err := s.deposits.Create(ctx, userID, dec("10"), "mpesa", "REF-R", json.RawMessage(`{"receipt":"r.png"}`))
	require.NoError(t, err)

	rejected, err := s.deposits.Reject(ctx, d.ID, uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, models.DepositRejected, rejected.Status)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).IsZero())

	// A rejected reference can be filed again.
	_, err = s.deposits.Create(ctx, userID, dec("10"), "mpesa", "REF-R", nil)
	assert.NoError(t, err)
	_, err = s.deposits.Create(ctx, uuid.New(), dec("10"), "mpesa", "REF-R", nil)
	assert.ErrorIs(t, err, repository.ErrDuplicateReference)
}

func TestDeposit_UnknownID(t *testing.T) {
	s := newStack(t)

	_, err := s.deposits.Approve(context.Background(), uuid.New(), uuid.New(), "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.withdrawals.Claim(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWallet_ConservationUnderConcurrency(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()
	s.fund(t, userID, models.WalletSeller, "500")

	var credited, debited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reason := "op:" + uuid.NewString()
			if i%2 == 0 {
				if _, applied, err := s.wallets.Credit(ctx, userID, models.WalletSeller, dec("3"), reason); err == nil && applied {
					credited.Add(3)
				}
				return
			}
			if _, applied, err := s.wallets.Debit(ctx, userID, models.WalletSeller, dec("7"), reason); err == nil && applied {
				debited.Add(7)
			}
		}(i)
	}
	wg.Wait()

	want := dec("500").Add(decimal.NewFromInt(credited.Load())).Sub(decimal.NewFromInt(debited.Load()))
	got := s.balance(t, userID, models.WalletSeller)
	assert.True(t, got.Equal(want), "balance %s, want %s", got, want)
	assert.False(t, got.IsNegative())
}

func TestWallet_ReplayedReasonIsNoOp(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.wallets.Credit(ctx, userID, models.WalletSeller, dec("12.34"), "marketplace_sale:order-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, s.balance(t, userID, models.WalletSeller).Equal(dec("12.34")))
	txs, err := s.wallets.Transactions(ctx, userID, models.WalletSeller, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.DirectionCredit, txs[0].Direction)
	assert.True(t, txs[0].BalanceAfter.Equal(dec("12.34")))
}

func TestWallet_DebitUnknownWallet(t *testing.T) {
	s := newStack(t)

	_, _, err := s.wallets.Debit(context.Background(), uuid.New(), models.WalletBuyer, dec("1"), "x")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	assert.True(t, s.balance(t, uuid.New(), models.WalletBuyer).IsZero())
}

func TestDeposit_ReferenceReusableOnlyAfterRejection(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user, admin := uuid.New(), uuid.New()

	d, err := s.deposits.Create(ctx, user, dec("25"), "mpesa", "QK99XYZ", nil)
	require.NoError(t, err)

	_, err = s.deposits.Create(ctx, uuid.New(), dec("25"), "mpesa", "QK99XYZ", nil)
	assert.ErrorIs(t, err, repository.ErrDuplicateReference)

	_, err = s.deposits.Reject(ctx, d.ID, admin, "")
	require.NoError(t, err)

	_, err = s.deposits.Create(ctx, user, dec("25"), "mpesa", "QK99XYZ", nil)
	assert.NoError(t, err)
}

// journalDirect books a credit straight through the repository, bypassing
// the reason checks of the wallet service.
func (s *stack) journalDirect(t *testing.T, userID uuid.UUID, walletType models.WalletType, amount, reason string) {
	t.Helper()
	store := repository.NewStore(s.pool, testLogger)
	repo := repository.NewWalletPGRepository(s.pool, testLogger)
	err := store.InTx(context.Background(), func(tx pgx.Tx) error {
		_, _, err := repo.Credit(context.Background(), tx, userID, walletType, dec(amount), reason)
		return err
	})
	require.NoError(t, err)
}

func TestWallet_WorkflowReasonsAreReserved(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, other := uuid.New(), uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)

	_, _, err = s.wallets.Credit(ctx, other, models.WalletBuyer, dec("1"), "withdrawal_refund:"+w.ID.String())
	assert.ErrorIs(t, err, service.ErrReservedReason)
	_, _, err = s.wallets.Debit(ctx, userID, models.WalletBuyer, dec("1"), "withdrawal:"+w.ID.String())
	assert.ErrorIs(t, err, service.ErrReservedReason)

	rejected, err := s.withdrawals.Reject(ctx, w.ID, uuid.New(), "wrong phone")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, rejected.Status)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("100")))
	assert.True(t, s.balance(t, other, models.WalletBuyer).IsZero())
}

func TestWithdrawal_RejectWithJournaledRefundReasonStaysPending(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, other := uuid.New(), uuid.New()
	s.fund(t, userID, models.WalletBuyer, "100")
	w, err := s.withdrawals.Create(ctx, userID, models.WalletBuyer, dec("60"), "mpesa", mpesaDetails)
	require.NoError(t, err)
	s.journalDirect(t, other, models.WalletBuyer, "7", "withdrawal_refund:"+w.ID.String())

	_, err = s.withdrawals.Reject(ctx, w.ID, uuid.New(), "wrong phone")
	assert.ErrorIs(t, err, repository.ErrReasonConflict)

	got, err := s.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, got.Status)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).Equal(dec("40")))
	assert.True(t, s.balance(t, other, models.WalletBuyer).Equal(dec("7")))
	assert.Zero(t, s.notified(notify.EventWithdrawalRejected))
}

func TestDeposit_ApproveWithJournaledReasonStaysPending(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID, other := uuid.New(), uuid.New()
	d, err := s.deposits.Create(ctx, userID, dec("200"), "mpesa", "QK99ZZ00", nil)
	require.NoError(t, err)
	s.journalDirect(t, other, models.WalletBuyer, "200", "deposit:"+d.ID.String())

	_, err = s.deposits.Approve(ctx, d.ID, uuid.New(), "")
	assert.ErrorIs(t, err, repository.ErrReasonConflict)

	got, err := s.deposits.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, got.Status)
	assert.True(t, s.balance(t, userID, models.WalletBuyer).IsZero())
	assert.Zero(t, s.notified(notify.EventDepositApproved))
}

func TestWallet_ReasonReusedForDifferentAmountConflicts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	userID := uuid.New()

	_, applied, err := s.wallets.Credit(ctx, userID, models.WalletSeller, dec("30"), "marketplace_sale:77")
	require.NoError(t, err)
	require.True(t, applied)

	_, applied, err = s.wallets.Credit(ctx, userID, models.WalletSeller, dec("31"), "marketplace_sale:77")
	assert.ErrorIs(t, err, repository.ErrReasonConflict)
	assert.False(t, applied)
	assert.True(t, s.balance(t, userID, models.WalletSeller).Equal(dec("30")))
}

func TestEarnings_OverviewIgnoresFutureDatedRows(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.earnings.Record(ctx, models.EarningMarketplaceCommission, dec("3"), now, nil)
	require.NoError(t, err)
	_, _, err = s.earnings.Record(ctx, models.EarningSubscriptionFee, dec("50"), now.AddDate(1, 0, 0), nil)
	require.NoError(t, err)

	o, err := s.earnings.Overview(ctx)
	require.NoError(t, err)
	assert.True(t, o.Today.Equal(dec("3")), o.Today.String())
	assert.True(t, o.ThisMonth.Equal(dec("3")), o.ThisMonth.String())
	assert.True(t, o.AllTime.Equal(dec("53")), o.AllTime.String())
}
