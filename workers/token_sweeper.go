// workers/token_sweeper.go
package workers

import (
	"context"
	"log"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/services"
)

// SweepTokens periodically deletes access tokens past their expiry. Resolve
// already deletes stale tokens it touches; the sweeper keeps rows that are
// never presented again from piling up.
func SweepTokens(ctx context.Context, tokens *services.TokenService, interval time.Duration) {
	log.Println("Starting expired-token sweeper...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Token sweeper stopped.")
			return
		case <-ticker.C:
			removed, err := tokens.DeleteExpired(time.Now().UTC())
			if err != nil {
				log.Printf("❌ Error sweeping expired tokens: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("🧹 Removed %d expired token(s).", removed)
			}
		}
	}
}
