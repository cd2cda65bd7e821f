// Command token mints an access token for the internal API, e.g. for the
// payment gateway (-role SYSTEM) or an operator (-role STAFF).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/middleware"
	"github.com/iliyamo/cinema-ticketing/internal/utils"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	_ = godotenv.Load()

	role := flag.String("role", middleware.RoleStaff, "STAFF or SYSTEM")
	sub := flag.Uint64("sub", 1, "subject (staff member or client id)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	r := strings.ToUpper(*role)
	if r != middleware.RoleStaff && r != middleware.RoleSystem {
		log.Fatal().Str("role", *role).Msg("role must be STAFF or SYSTEM")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}
	tok, err := utils.NewAccessToken(secret, *sub, r, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(tok.Token)
	log.Info().Str("role", r).Time("expires", tok.Exp).Msg("token issued")
}
