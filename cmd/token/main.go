// Command token signs an access token with JWT_SECRET. Operators use it to
// obtain the first admin token; user tokens are normally issued through the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/congo-pay/billpay/internal/auth"
	"github.com/congo-pay/billpay/internal/config"
)

// adminOnly lets the issuer sign admin tokens without an account store.
type adminOnly struct{}

func (adminOnly) Exists(context.Context, string) (bool, error) { return true, nil }

func main() {
	subject := flag.String("sub", "operator", "token subject")
	role := flag.String("role", auth.RoleAdmin, "token role (user or admin)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}

	token, err := auth.NewService(cfg.JWTSecret, cfg.AppName, *ttl, adminOnly{}).Issue(context.Background(), *subject, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token.AccessToken)
}
