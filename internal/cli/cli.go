// Package cli implements the cartsync command: a thin shell around a Session
// whose identity survives between invocations in a small JSON state file.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/identity"
	"github.com/fjod/go_cart/cartsync/internal/migration"
	"github.com/fjod/go_cart/cartsync/internal/server/auth"
	"github.com/fjod/go_cart/cartsync/internal/session"
)

var ErrUsage = errors.New("usage error")

const usage = `usage: cartsync <command> [args]

commands:
  show                       print cart and wishlist
  add <productId> [qty]      add to cart (qty defaults to 1)
  update <productId> <qty>   set a cart line quantity
  remove <productId>         remove a cart line
  clear                      empty the cart
  wish <productId>           add to wishlist
  unwish <productId>         remove from wishlist
  check <productId>          report wishlist membership
  login [-token T] <userId>  sign in and merge the anonymous cart and wishlist
  logout                     sign out and start a new anonymous session
`

// Run executes one command. The session's identity is loaded from and saved
// back to cfg.StateFile.
func Run(ctx context.Context, args []string, out io.Writer, cfg config.Client, log *slog.Logger) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return ErrUsage
	}

	opts := []session.Option{session.WithLogger(log)}
	if id, ok, err := loadIdentity(cfg.StateFile); err != nil {
		return err
	} else if ok {
		opts = append(opts, session.WithIdentity(id))
	}

	s := session.New(cfg, opts...)
	defer s.Close()

	cmdErr := dispatch(ctx, s, args, out, cfg)
	if err := saveIdentity(cfg.StateFile, s.Identity()); err != nil {
		return errors.Join(cmdErr, err)
	}
	return cmdErr
}

func dispatch(ctx context.Context, s *session.Session, args []string, out io.Writer, cfg config.Client) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "show":
		if err := s.Init(ctx); err != nil {
			return err
		}
		return show(out, s)

	case "add":
		productID, err := argID(rest, 0)
		if err != nil {
			return err
		}
		quantity := 1
		if len(rest) > 1 {
			if quantity, err = strconv.Atoi(rest[1]); err != nil {
				return fmt.Errorf("%w: quantity %q is not a number", ErrUsage, rest[1])
			}
		}
		if err := s.Cart().AddToCart(ctx, productID, quantity); err != nil {
			return err
		}
		return showCart(out, s)

	case "update":
		productID, err := argID(rest, 0)
		if err != nil {
			return err
		}
		if len(rest) < 2 {
			return fmt.Errorf("%w: update needs a quantity", ErrUsage)
		}
		quantity, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("%w: quantity %q is not a number", ErrUsage, rest[1])
		}
		if err := s.Cart().UpdateItem(ctx, productID, quantity); err != nil {
			return err
		}
		return showCart(out, s)

	case "remove":
		productID, err := argID(rest, 0)
		if err != nil {
			return err
		}
		if err := s.Cart().RemoveItem(ctx, productID); err != nil {
			return err
		}
		return showCart(out, s)

	case "clear":
		if err := s.Cart().ClearCart(ctx); err != nil {
			return err
		}
		return showCart(out, s)

	case "wish", "unwish":
		productID, err := argID(rest, 0)
		if err != nil {
			return err
		}
		if cmd == "wish" {
			err = s.Wishlist().AddToWishlist(ctx, productID)
		} else {
			err = s.Wishlist().RemoveFromWishlist(ctx, productID)
		}
		if err != nil {
			return err
		}
		return showWishlist(out, s)

	case "check":
		productID, err := argID(rest, 0)
		if err != nil {
			return err
		}
		member, err := s.Wishlist().IsMember(ctx, productID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "product %d in wishlist: %t\n", productID, member)
		return nil

	case "login":
		return login(ctx, s, rest, out, cfg)

	case "logout":
		s.Logout()
		fmt.Fprintln(out, "logged out")
		return nil

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func login(ctx context.Context, s *session.Session, args []string, out io.Writer, cfg config.Client) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(out)
	token := fs.String("token", "", "bearer token (minted from CARTSYNC_JWT_SECRET when empty)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: login needs a user id", ErrUsage)
	}
	userID := fs.Arg(0)

	if *token == "" {
		if cfg.JWTSecret == "" {
			return fmt.Errorf("%w: pass -token or set CARTSYNC_JWT_SECRET", ErrUsage)
		}
		minted, err := auth.MintToken(cfg.JWTSecret, userID, 24*time.Hour)
		if err != nil {
			return err
		}
		*token = minted
	}

	err := s.Login(ctx, userID, *token)
	var migErr *migration.MigrationError
	if err != nil && !errors.As(err, &migErr) {
		return err
	}
	fmt.Fprintf(out, "logged in as %s\n", userID)
	if err != nil {
		fmt.Fprintf(out, "warning: %v\n", err)
	}
	return showCart(out, s)
}

func show(out io.Writer, s *session.Session) error {
	id := s.Identity()
	if id.IsAuthenticated() {
		fmt.Fprintf(out, "user %s\n", id.UserID)
	} else {
		fmt.Fprintln(out, "anonymous session")
	}
	if err := showCart(out, s); err != nil {
		return err
	}
	return showWishlist(out, s)
}

func showCart(out io.Writer, s *session.Session) error {
	cart := s.Cart().Snapshot()
	if cart == nil || len(cart.Items) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tQTY\tPRICE")
	for _, item := range cart.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\n",
			item.ProductID, item.ProductSnapshot.Name, item.Quantity, item.ProductSnapshot.Price)
	}
	fmt.Fprintf(tw, "\t\t%d\t%.2f\n", s.Cart().ItemCount(), s.Cart().Total())
	return tw.Flush()
}

func showWishlist(out io.Writer, s *session.Session) error {
	w := s.Wishlist().Snapshot()
	if w == nil || len(w.Items) == 0 {
		fmt.Fprintln(out, "wishlist is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tADDED")
	for _, item := range w.Items {
		fmt.Fprintf(tw, "%d\t%s\n", item.ProductID, item.AddedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func argID(args []string, i int) (int64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%w: missing product id", ErrUsage)
	}
	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: product id %q is not a number", ErrUsage, args[i])
	}
	return id, nil
}

func loadIdentity(path string) (identity.Identity, bool, error) {
	if path == "" {
		return identity.Identity{}, false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return identity.Identity{}, false, nil
	}
	if err != nil {
		return identity.Identity{}, false, fmt.Errorf("read state file: %w", err)
	}
	var id identity.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return identity.Identity{}, false, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return id, id.SessionToken != "", nil
}

func saveIdentity(path string, id identity.Identity) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
