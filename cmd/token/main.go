package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grachmannico95/residue-market-be/internal/config"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/middleware"
)

// token mints a development bearer token signed with JWT_SECRET.
func main() {
	user := flag.String("user", "", "user id (required)")
	role := flag.String("role", string(domain.RoleBuyer), "farmer, panchayat or buyer")
	panchayat := flag.String("panchayat", "", "panchayat id, required for farmer and panchayat roles")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to TOKEN_TTL")
	flag.Parse()

	cfg := config.Load()

	identity := domain.Identity{
		UserID:      *user,
		Role:        domain.Role(*role),
		PanchayatID: *panchayat,
	}

	switch identity.Role {
	case domain.RoleBuyer:
	case domain.RoleFarmer, domain.RolePanchayat:
		if identity.PanchayatID == "" {
			fmt.Fprintf(os.Stderr, "-panchayat is required for role %s\n", identity.Role)
			os.Exit(2)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.Auth.TokenTTL
	}

	token, err := middleware.IssueToken(cfg.Auth.JWTSecret, identity, lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
