package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dtelabs/escrow-api/internal/auth"
	"github.com/dtelabs/escrow-api/internal/chain"
	"github.com/dtelabs/escrow-api/internal/database"
	"github.com/dtelabs/escrow-api/internal/lifecycle"
	"github.com/dtelabs/escrow-api/internal/orchestrator"
	"github.com/dtelabs/escrow-api/internal/store"
	"github.com/dtelabs/escrow-api/internal/syncer"
	"github.com/dtelabs/escrow-api/internal/types"
	"github.com/dtelabs/escrow-api/pkg/middleware"
)

const (
	serverAddress = "http://localhost:8080"
	jwtSecret     = "dte-secret-key"

	sellerIdentity = "0xSellerKimLine"
	buyerIdentity  = "0xBuyerKimKakao"

	productName     = "Vintage Camera"
	productImageURL = "https://images.dte.example/vintage-camera.jpg"
	productAmount   = 250000
	deliveryAddress = "12 Teheran-ro, Gangnam-gu, Seoul"
	trackingNumber  = "6896724158888"
)

// init configures the logger for the demo with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// viewer bundles one party's independently polling client state: its own
// synchronizer, its own orchestrator, its own view of the shared record.
type viewer struct {
	role     types.Role
	identity string
	sync     *syncer.Synchronizer
	orch     *orchestrator.Orchestrator
}

func newViewer(ctx context.Context, role types.Role, identity string, ledger *chain.SimLedger) (*viewer, error) {
	client, err := syncer.NewClient(serverAddress, auth.DemoAPIKey, auth.DemoAPISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to build store client: %w", err)
	}

	v := &viewer{
		role:     role,
		identity: identity,
		sync:     syncer.New(client, syncer.DefaultPollInterval),
	}

	// The orchestrator writes through the same synchronizer the projector
	// reads, so its post-action refresh lands in the viewer's own cache.
	v.orch = orchestrator.New(ledger, v.sync)
	v.orch.OnProgress(func(p orchestrator.Progress) {
		phase := "submitting"
		if p.Confirming {
			phase = "waiting for confirmation"
		}
		log.Info().
			Str("viewer", string(role)).
			Str("phase", phase).
			Msgf("%d/%d: %s", p.Stage, p.Total, p.Description)
	})

	go v.sync.Start(ctx)
	return v, nil
}

// view projects the viewer's current screen from its cache.
func (v *viewer) view() lifecycle.ViewModel {
	return lifecycle.Project(v.role, v.identity, v.sync.Snapshot())
}

// waitForScreen polls the viewer's projection until the wanted screen shows
// up or the timeout expires.
func (v *viewer) waitForScreen(screen lifecycle.Screen, timeout time.Duration) (lifecycle.ViewModel, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		view := v.view()
		if view.Screen == screen {
			return view, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return lifecycle.ViewModel{}, fmt.Errorf("%s never reached screen %s", v.role, screen)
}

// main walks one full escrow trade across two independently polling viewers:
// registration, deposit pipeline, shipment, oracle-confirmed delivery,
// receipt confirmation and withdrawal.
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start record store server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger := chain.NewSimLedger()

	seller, err := newViewer(ctx, types.RoleSeller, sellerIdentity, ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize seller viewer")
	}
	buyer, err := newViewer(ctx, types.RoleBuyer, buyerIdentity, ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize buyer viewer")
	}

	// Start from an empty collection.
	if err := seller.sync.Clear(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset the collection")
	}

	start := time.Now()

	// Step 1: the seller registers the product.
	log.Info().Str("product", productName).Float64("amount", productAmount).Msg("seller registers product")
	registered, err := seller.sync.Create(ctx, types.NewTrade{
		Seller:          sellerIdentity,
		Amount:          productAmount,
		ProductName:     productName,
		ProductImageURL: productImageURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("registration failed")
	}
	log.Info().Int64("trade_id", registered.TradeID).Msg("product listed")

	// Step 2: the buyer finds the listing and runs the deposit pipeline.
	buyerView, err := buyer.waitForScreen(lifecycle.ScreenBuyerListing, 10*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("buyer never saw the listing")
	}
	action, ok := lifecycle.LegalAction(buyerView)
	if !ok || action.Kind != lifecycle.ActionDeposit {
		log.Fatal().Str("screen", buyerView.Screen.String()).Msg("expected a deposit action for the buyer")
	}
	if err := buyer.orch.InitiatePurchase(ctx, action.Trade, buyerIdentity, deliveryAddress); err != nil {
		log.Fatal().Err(err).Msg("purchase pipeline failed")
	}

	// Step 3: the seller sees the deposit and submits the tracking number.
	sellerView, err := seller.waitForScreen(lifecycle.ScreenSellerFulfillmentEntry, 10*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("seller never saw the deposit")
	}
	action, ok = lifecycle.LegalAction(sellerView)
	if !ok || action.Kind != lifecycle.ActionSubmitTracking {
		log.Fatal().Msg("expected a submit-tracking action for the seller")
	}
	if err := seller.orch.SubmitTracking(ctx, action.Trade, trackingNumber); err != nil {
		log.Fatal().Err(err).Msg("tracking submission failed")
	}
	ledgerTradeID := action.Trade.TradeID

	// Step 4: the carrier delivers; the oracle reports it and the record
	// advances without any seller action.
	time.Sleep(2 * time.Second)
	log.Info().Int64("trade_id", ledgerTradeID).Msg("delivery oracle reports the parcel delivered")
	ledger.MarkDelivered(ledgerTradeID)

	// Step 5: the buyer confirms receipt.
	buyerView, err = buyer.waitForScreen(lifecycle.ScreenBuyerConfirmReceipt, 15*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("buyer never saw the delivery")
	}
	action, ok = lifecycle.LegalAction(buyerView)
	if !ok || action.Kind != lifecycle.ActionConfirmDelivery {
		log.Fatal().Msg("expected a confirm-delivery action for the buyer")
	}
	if err := buyer.orch.ConfirmDelivery(ctx, action.Trade); err != nil {
		log.Fatal().Err(err).Msg("receipt confirmation failed")
	}

	// Step 6: the seller withdraws the escrowed amount.
	sellerView, err = seller.waitForScreen(lifecycle.ScreenSellerWithdraw, 10*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("seller never saw the confirmation")
	}
	action, ok = lifecycle.LegalAction(sellerView)
	if !ok || action.Kind != lifecycle.ActionWithdraw {
		log.Fatal().Msg("expected a withdraw action for the seller")
	}
	if err := seller.orch.Withdraw(ctx, action.Trade); err != nil {
		log.Fatal().Err(err).Msg("withdrawal failed")
	}

	// The buyer's side settles into history on its next polls.
	if _, err := buyer.waitForScreen(lifecycle.ScreenBuyerListing, 10*time.Second); err != nil {
		log.Fatal().Err(err).Msg("buyer never settled into history")
	}
	finalBuyerView := buyer.view()

	printSummary(finalBuyerView, ledgerTradeID, time.Since(start))
}

func printSummary(buyerView lifecycle.ViewModel, tradeID int64, duration time.Duration) {
	fmt.Println("\n" + strings.Repeat("=", 72))
	fmt.Println("ESCROW DEMO SUMMARY")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf(`
Product:           %s
Amount:            %.0f KRW
Ledger trade ID:   %d
Tracking number:   %s
Closed trades:     %d
Duration:          %v
`, productName, float64(productAmount), tradeID, trackingNumber,
		len(buyerView.History), duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 72))
}

// startServer initializes and starts the record store server used by both
// viewers.
func startServer() error {
	// Shared-cache DSN: the connection pool must see one database.
	db, err := database.NewDatabase("file::memory:?cache=shared")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret)
	storeService := store.NewService(db)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	storeHandlers := store.NewGinHandlers(storeService)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authHandlers.GenerateTokenHandler())

		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(jwtSecret))
		{
			trades.GET("", storeHandlers.ListTradesHandler())
			trades.POST("", storeHandlers.CreateTradeHandler())
			trades.PUT("", storeHandlers.UpdateTradeHandler())
			trades.DELETE("", storeHandlers.ClearTradesHandler())
		}
	}

	return router.Run(":8080")
}
