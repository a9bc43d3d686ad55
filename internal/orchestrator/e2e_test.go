package orchestrator

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtelabs/escrow-api/internal/auth"
	"github.com/dtelabs/escrow-api/internal/chain"
	"github.com/dtelabs/escrow-api/internal/database"
	"github.com/dtelabs/escrow-api/internal/lifecycle"
	"github.com/dtelabs/escrow-api/internal/store"
	"github.com/dtelabs/escrow-api/internal/syncer"
	"github.com/dtelabs/escrow-api/internal/types"
	"github.com/dtelabs/escrow-api/pkg/middleware"
)

func newStoreServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)

	authService := auth.NewService("e2e-secret")
	authService.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret)
	storeService := store.NewService(db)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	authHandlers := auth.NewGinHandlers(authService)
	storeHandlers := store.NewGinHandlers(storeService)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", authHandlers.GenerateTokenHandler())
	trades := v1.Group("/trades")
	trades.Use(middleware.JWTAuth("e2e-secret"))
	{
		trades.GET("", storeHandlers.ListTradesHandler())
		trades.POST("", storeHandlers.CreateTradeHandler())
		trades.PUT("", storeHandlers.UpdateTradeHandler())
		trades.DELETE("", storeHandlers.ClearTradesHandler())
	}

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

type party struct {
	role     types.Role
	identity string
	syn      *syncer.Synchronizer
	orch     *Orchestrator
}

func newParty(t *testing.T, ctx context.Context, serverURL string, role types.Role, identity string, ledger *chain.SimLedger) *party {
	t.Helper()

	client, err := syncer.NewClient(serverURL, auth.DemoAPIKey, auth.DemoAPISecret)
	require.NoError(t, err)

	p := &party{
		role:     role,
		identity: identity,
		syn:      syncer.New(client, 50*time.Millisecond),
	}
	p.orch = New(ledger, p.syn)
	p.orch.watchInterval = 20 * time.Millisecond

	go p.syn.Start(ctx)
	return p
}

func (p *party) view() lifecycle.ViewModel {
	return lifecycle.Project(p.role, p.identity, p.syn.Snapshot())
}

func (p *party) waitForScreen(t *testing.T, screen lifecycle.Screen) lifecycle.ViewModel {
	t.Helper()

	require.Eventually(t, func() bool {
		return p.view().Screen == screen
	}, 5*time.Second, 20*time.Millisecond, "%s never reached screen %s", p.role, screen)
	return p.view()
}

func TestFullTradeLifecycleOverHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newStoreServer(t)
	ledger := chain.NewSimLedger()

	seller := newParty(t, ctx, server.URL, types.RoleSeller, "0xSellerKim", ledger)
	buyer := newParty(t, ctx, server.URL, types.RoleBuyer, "0xBuyerLee", ledger)

	// Before registration the seller sees the registration form and the
	// buyer an empty listing.
	seller.waitForScreen(t, lifecycle.ScreenSellerRegistration)
	buyer.waitForScreen(t, lifecycle.ScreenBuyerListing)

	// Registration shows up on both sides with the product details intact.
	registered, err := seller.syn.Create(ctx, types.NewTrade{
		Seller:      seller.identity,
		Amount:      250000,
		ProductName: "Vintage Camera",
	})
	require.NoError(t, err)

	sellerView := seller.waitForScreen(t, lifecycle.ScreenSellerDashboard)
	require.Len(t, sellerView.Dashboard, 1)
	assert.Equal(t, "Vintage Camera", sellerView.Dashboard[0].ProductName)

	var buyerView lifecycle.ViewModel
	require.Eventually(t, func() bool {
		buyerView = buyer.view()
		return len(buyerView.Listings) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, float64(250000), buyerView.Listings[0].Amount)

	// The buyer runs the deposit pipeline; the trade crosses to the
	// ledger-minted ID in one visible step.
	action, ok := lifecycle.LegalAction(buyerView)
	require.True(t, ok)
	require.Equal(t, lifecycle.ActionDeposit, action.Kind)
	require.NoError(t, buyer.orch.InitiatePurchase(ctx, action.Trade, buyer.identity, "12 Teheran-ro, Seoul"))

	sellerView = seller.waitForScreen(t, lifecycle.ScreenSellerFulfillmentEntry)
	require.NotNil(t, sellerView.Active)
	assert.NotEqual(t, registered.TradeID, sellerView.Active.TradeID)
	assert.Equal(t, types.StatusDeposited, sellerView.Active.Status)
	assert.Equal(t, buyer.identity, sellerView.Active.Buyer)
	buyer.waitForScreen(t, lifecycle.ScreenBuyerAwaitingFulfillment)

	// The seller ships; both sides converge on the shipping screen.
	action, ok = lifecycle.LegalAction(sellerView)
	require.True(t, ok)
	require.Equal(t, lifecycle.ActionSubmitTracking, action.Kind)
	require.NoError(t, seller.orch.SubmitTracking(ctx, action.Trade, "6896724158888"))

	buyer.waitForScreen(t, lifecycle.ScreenShippingInProgress)
	seller.waitForScreen(t, lifecycle.ScreenShippingInProgress)

	// Delivery is observed by the seller's watcher and propagates to the
	// buyer through its own polling.
	ledger.MarkDelivered(action.Trade.TradeID)
	buyerView = buyer.waitForScreen(t, lifecycle.ScreenBuyerConfirmReceipt)

	action, ok = lifecycle.LegalAction(buyerView)
	require.True(t, ok)
	require.Equal(t, lifecycle.ActionConfirmDelivery, action.Kind)
	require.NoError(t, buyer.orch.ConfirmDelivery(ctx, action.Trade))

	sellerView = seller.waitForScreen(t, lifecycle.ScreenSellerWithdraw)
	action, ok = lifecycle.LegalAction(sellerView)
	require.True(t, ok)
	require.Equal(t, lifecycle.ActionWithdraw, action.Kind)
	require.NoError(t, seller.orch.Withdraw(ctx, action.Trade))

	// The closed trade settles into both parties' history.
	buyerView = buyer.waitForScreen(t, lifecycle.ScreenBuyerListing)
	assert.Len(t, buyerView.History, 1)
	assert.Empty(t, buyerView.Listings)

	sellerView = seller.waitForScreen(t, lifecycle.ScreenSellerRegistration)
	assert.Len(t, sellerView.History, 1)
}
