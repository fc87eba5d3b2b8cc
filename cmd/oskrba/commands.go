package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/erazemk/oskrba/internal/auth"
	"github.com/erazemk/oskrba/internal/config"
	"github.com/erazemk/oskrba/internal/db"
	"github.com/erazemk/oskrba/internal/localstore"
	"github.com/erazemk/oskrba/internal/model"
	"github.com/erazemk/oskrba/internal/state"
	"github.com/erazemk/oskrba/internal/store"
)

func cmdLogin(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("OSKRBA_PASSWORD"), "password (default: $OSKRBA_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("login: -u is required")
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	u, err := auth.Authenticate(c.orch.State(), *username, *password)
	if err != nil {
		return err
	}
	if err := auth.SaveSession(ctx, c.storage, u.ID); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s).\n", u.DisplayName(), u.Role)
	return nil
}

func cmdLogout(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := openDB(cfg.LocalPath)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := auth.ClearSession(context.Background(), localstore.New(database)); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func cmdStatus(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	info := c.orch.SyncInfo()
	s := c.orch.State()
	fmt.Printf("Source:       %s\n", info.Source)
	if !info.LastSyncedAt.IsZero() {
		fmt.Printf("Last synced:  %s\n", info.LastSyncedAt.Format(time.RFC3339))
	}
	if info.Error != "" {
		fmt.Printf("Sync error:   %s\n", info.Error)
	}
	if u, err := c.currentUser(ctx); err == nil {
		fmt.Printf("Signed in as: %s\n", u.DisplayName())
	}
	fmt.Printf("Items:        %d\n", len(s.Items))
	fmt.Printf("Requests:     %d issue, %d purchase\n", len(s.IssueRequests), len(s.PurchaseRequests))

	low := s.LowStockItems()
	if len(low) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Low stock:")
	for _, it := range low {
		fmt.Printf("  %-30s %-10s %s, reorder at %d\n", state.ItemLabel(it), it.SKU, stockLabel(it), it.Threshold)
	}
	return nil
}

func cmdAdjust(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("adjust", flag.ContinueOnError)
	ref := fs.String("item", "", "item id or SKU")
	stock := fs.Int("stock", -1, "new stock level")
	unit := fs.String("unit", model.UnitEach, "unit of -stock: each or box")
	note := fs.String("note", "", "optional note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ref == "" || *stock < 0 {
		return errors.New("adjust: -item and a non-negative -stock are required")
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	u, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	it, ok := findItem(c.orch.State(), *ref)
	if !ok {
		return fmt.Errorf("adjust: no item %q", *ref)
	}

	if *unit != model.UnitEach && *unit != model.UnitBox {
		return fmt.Errorf("adjust: unknown unit %q", *unit)
	}
	newStock := it.BaseQuantity(*stock, *unit)

	err = c.orch.Dispatch(state.AdjustInventory{ItemID: it.ID, NewStock: newStock, ActorID: u.ID, Note: *note})
	if err != nil {
		return err
	}
	c.orch.Wait()
	if msg := c.orch.SyncInfo().Error; msg != "" {
		return fmt.Errorf("adjusted locally but not saved: %s", msg)
	}
	fmt.Printf("%s: %d -> %d\n", state.ItemLabel(it), it.Stock, newStock)
	return nil
}

// stockLabel shows stock in boxes and loose units for boxed items.
func stockLabel(it model.Item) string {
	boxes, rest := it.Boxes()
	if it.Unit != model.UnitBox || boxes == 0 {
		return fmt.Sprintf("stock %d", it.Stock)
	}
	return fmt.Sprintf("stock %d (%d boxes + %d)", it.Stock, boxes, rest)
}

// findItem looks an item up by id, then by SKU.
func findItem(s model.AppState, ref string) (model.Item, bool) {
	if it, ok := s.FindItem(ref); ok {
		return it, true
	}
	for _, it := range s.Items {
		if strings.EqualFold(it.SKU, ref) {
			return it, true
		}
	}
	return model.Item{}, false
}

func cmdPasswd(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	password := fs.String("p", os.Getenv("OSKRBA_NEW_PASSWORD"), "new password (default: $OSKRBA_NEW_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := model.ValidatePassword(*password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(*password, 0)
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	u, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	u.Password = hash
	if err := c.orch.Dispatch(state.UpsertUser{User: u, ActorID: u.ID, Description: "changed password"}); err != nil {
		return err
	}
	c.orch.Wait()
	if msg := c.orch.SyncInfo().Error; msg != "" {
		return fmt.Errorf("password changed locally but not saved: %s", msg)
	}
	fmt.Println("Password changed.")
	return nil
}

func cmdWatch(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	metricsAddr := fs.String("metrics", "", "serve client metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if *metricsAddr != "" {
		server := &http.Server{
			Addr:              *metricsAddr,
			Handler:           c.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("serving metrics", "error", err)
			}
		}()
		defer server.Close()
		slog.Info("serving metrics", "addr", *metricsAddr)
	}

	unsubscribe := c.store.Subscribe(func(ch state.Change) {
		printChanges(ch.Prev, ch.Next)
	})
	defer unsubscribe()

	fmt.Printf("Watching (source %s). Press Ctrl+C to stop.\n", c.orch.SyncInfo().Source)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit
	return nil
}

// printChanges prints audit entries added between prev and next, oldest first.
func printChanges(prev, next model.AppState) {
	seen := make(map[string]bool, len(prev.AuditLogs))
	for _, l := range prev.AuditLogs {
		seen[l.ID] = true
	}
	for i := len(next.AuditLogs) - 1; i >= 0; i-- {
		l := next.AuditLogs[i]
		if seen[l.ID] {
			continue
		}
		fmt.Printf("%s  %-9s %s: %s (%s)\n", l.Timestamp.Local().Format(time.DateTime), l.Category,
			state.UserName(next, l.ActorID), l.Action, l.Target)
	}
	for _, it := range next.LowStockItems() {
		if before, ok := prev.FindItem(it.ID); ok && !before.IsLowStock() {
			fmt.Printf("low stock: %s (%d left)\n", state.ItemLabel(it), it.Stock)
		}
	}
}

func cmdReset(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm the reset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("reset: this erases all data, pass -yes to confirm")
	}

	ctx := context.Background()
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	u, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	if !u.IsAdmin() {
		return errors.New("reset: admin role required")
	}
	if err := c.orch.Reset(ctx); err != nil {
		return err
	}
	// The old user ids are gone.
	if err := auth.ClearSession(ctx, c.storage); err != nil {
		return err
	}
	fmt.Println("State reset to the default data. Sign in again.")
	return nil
}

func cmdToken(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "server SQLite database path")
	clientID := fs.String("client", "", "client name recorded in the token")
	ttl := fs.Duration("ttl", auth.TokenExpiry, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *clientID == "" {
		return errors.New("token: -client is required")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		database, err := openDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if secret, err = store.GetJWTSecret(context.Background(), database); err != nil {
			return fmt.Errorf("getting JWT secret: %w", err)
		}
	}

	token, err := auth.GenerateToken(secret, *clientID, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func openDB(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring database schema: %w", err)
	}
	return database, nil
}
