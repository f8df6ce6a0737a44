// Command users manages accounts from the shell: creating administrators,
// listing accounts and hashing passwords.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/potholewatch/backend/internal/auth"
	"github.com/potholewatch/backend/internal/config"
	"github.com/potholewatch/backend/internal/db"
	"github.com/potholewatch/backend/internal/mongostore"
	"github.com/potholewatch/backend/internal/repo"
	"github.com/potholewatch/backend/internal/service"
)

type userStore interface {
	InsertUser(ctx context.Context, in repo.NewUser) (repo.User, error)
	GetUserByEmail(ctx context.Context, email string) (repo.User, error)
	GetUserByID(ctx context.Context, id string) (repo.User, error)
	ListUsers(ctx context.Context) ([]repo.User, error)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "list":
		err = runList()
	case "hash":
		err = runHash(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: users create --name NAME --email EMAIL --password PASS [--role ROLE]")
	fmt.Fprintln(os.Stderr, "       users list")
	fmt.Fprintln(os.Stderr, "       users hash PASSWORD")
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", auth.RoleUser, "user, admin, admin-tmc, admin-bmc or admin-nmmc")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, closeFn, err := openUsers(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	// CreateUser never touches redis; sessions are only issued on login.
	svc := service.NewAuthService(users, nil, nil, 0)
	profile, err := svc.CreateUser(ctx, service.SignupInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
	}, *role)
	if err != nil {
		return err
	}

	log.Info().
		Str("user_id", profile.ID).
		Str("email", profile.Email).
		Str("role", profile.Role).
		Str("authority", profile.Authority).
		Msg("user created")
	return nil
}

func runList() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, closeFn, err := openUsers(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	list, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tAUTHORITY\tCREATED")
	for _, u := range list {
		authority := u.HomeAuthority
		if authority == "" {
			authority = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, authority, u.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runHash(args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("hash takes exactly one password argument")
	}
	hash, err := auth.Hash(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func openUsers(ctx context.Context) (userStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	if cfg.StoreDriver == config.StoreDriverMongo {
		client, database, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return mongostore.NewUsers(database), func() { _ = client.Disconnect(context.Background()) }, nil
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo.NewUsers(pool), pool.Close, nil
}
