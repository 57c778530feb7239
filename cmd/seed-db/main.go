package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-api/internal/domain/auth"
	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/repository"
)

type seedProduct struct {
	Title    string
	Slug     string
	Price    decimal.Decimal
	IsActive bool
}

type seedUser struct {
	Email  string
	Scopes []string
}

var users = []seedUser{
	{Email: "shopper@example.com"},
	{Email: "admin@example.com", Scopes: []string{auth.ScopeAdmin}},
}

var codes = []discount.Code{
	{Title: "Welcome: 10% off", Code: "WELCOME10", Type: discount.TypePercentage, Value: decimal.NewFromInt(10), CanUses: 1000},
	{Title: "Five off", Code: "FIVEOFF", Type: discount.TypeFixed, Value: decimal.NewFromInt(5), CanUses: 100},
	{Title: "Last one", Code: "LASTONE", Type: discount.TypePercentage, Value: decimal.NewFromInt(50), CanUses: 1},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
		jwtIssuer    string
		codeTTL      time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HMAC secret for development tokens (or SHOP_JWT_SECRET env)")
	flag.StringVar(&jwtIssuer, "jwt-issuer", "shop-api", "issuer of development tokens")
	flag.DurationVar(&codeTTL, "code-ttl", 7*24*time.Hour, "lifetime of seeded discount codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("SHOP_JWT_SECRET")
	}
	tokens, err := auth.NewTokens([]byte(jwtSecret), jwtIssuer, 30*24*time.Hour)
	if err != nil {
		slog.Error("JWT secret is required: set --jwt-secret or SHOP_JWT_SECRET")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, tokens, codeTTL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, tokens *auth.Tokens, codeTTL time.Duration) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCodes(ctx, pool, time.Now().Add(codeTTL)); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}

	if err := seedUsers(ctx, pool, tokens); err != nil {
		return errors.Wrap(err, "seed users")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsert = `
		INSERT INTO products (title, slug, price, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE
		SET title = EXCLUDED.title, price = EXCLUDED.price, is_active = EXCLUDED.is_active, is_delete = FALSE`
	for _, p := range products {
		if _, err := pool.Exec(ctx, upsert, p.Title, p.Slug, p.Price, p.IsActive); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Slug)
		}
		slog.Info("upserted product", slog.String("slug", p.Slug), slog.String("price", p.Price.StringFixed(2)))
	}

	return nil
}

// decodeProducts parses [{"title","slug","price","is_active"?}]. Products are
// active unless is_active is false.
func decodeProducts(data []byte) ([]seedProduct, error) {
	var products []seedProduct
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p := seedProduct{IsActive: true}
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "title":
				p.Title, err = d.Str()
			case "slug":
				p.Slug, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					p.Price, err = decimal.NewFromString(s)
				}
			case "is_active":
				p.IsActive, err = d.Bool()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "field %s", key)
			}
			return nil
		}); err != nil {
			return err
		}
		if p.Slug == "" || p.Title == "" {
			return errors.Errorf("product %d: title and slug are required", len(products))
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

// seedCodes resets the development codes to full allowance.
func seedCodes(ctx context.Context, pool *pgxpool.Pool, expiredAt time.Time) error {
	slog.Info("seeding discount codes", slog.Time("expired_at", expiredAt))

	const upsert = `
		INSERT INTO discount_codes (title, code, discount_type, discount_value, expired_at, can_uses)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET title = EXCLUDED.title, discount_type = EXCLUDED.discount_type,
		    discount_value = EXCLUDED.discount_value, expired_at = EXCLUDED.expired_at,
		    can_uses = EXCLUDED.can_uses, is_active = TRUE`
	for _, c := range codes {
		c.ExpiredAt = expiredAt
		if err := discount.Validate(&c, time.Now()); err != nil {
			return errors.Wrapf(err, "validate code %s", c.Code)
		}
		if _, err := pool.Exec(ctx, upsert, c.Title, c.Code, string(c.Type), c.Value, c.ExpiredAt, c.CanUses); err != nil {
			return errors.Wrapf(err, "upsert code %s", c.Code)
		}
		slog.Info("upserted discount code", slog.String("code", c.Code), slog.Int("can_uses", c.CanUses))
	}

	return nil
}

// seedUsers creates the development users and prints a bearer token for each.
func seedUsers(ctx context.Context, pool *pgxpool.Pool, tokens *auth.Tokens) error {
	const upsert = `
		INSERT INTO users (email) VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id`
	for _, u := range users {
		var id int64
		if err := pool.QueryRow(ctx, upsert, u.Email).Scan(&id); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.Email)
		}
		token, err := tokens.Issue(auth.Principal{UserID: id, Scopes: u.Scopes})
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.Email)
		}
		slog.Info("upserted user", slog.String("email", u.Email), slog.Int64("id", id))
		fmt.Printf("%s\tAuthorization: Bearer %s\n", u.Email, token)
	}

	return nil
}
