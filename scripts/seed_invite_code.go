package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"kyc-verification-server/config"
	"kyc-verification-server/models"
	"kyc-verification-server/storage"

	"github.com/kataras/golog"
)

// Creates an admin invite code so the first administrator can sign up.
func main() {
	code := flag.String("code", "", "invite code to create (random when empty)")
	maxUses := flag.Int("max-uses", 1, "how many signups the code allows")
	ttl := flag.Duration("ttl", 7*24*time.Hour, "validity period, 0 for no expiry")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		golog.Fatalf("config: %v", err)
	}
	db, err := storage.InitializeDB(cfg.DatabaseURL)
	if err != nil {
		golog.Fatalf("database: %v", err)
	}

	invite := models.InviteCode{Code: *code, MaxUses: *maxUses}
	if *ttl > 0 {
		expires := time.Now().Add(*ttl)
		invite.ExpiresAt = &expires
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := storage.NewInviteStore(db).Create(ctx, &invite); err != nil {
		golog.Fatalf("create invite code: %v", err)
	}

	fmt.Printf("Invite code %s created (max uses %d)\n", invite.Code, invite.MaxUses)
}
