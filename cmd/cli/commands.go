package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/service"
)

// cliIP stands in for the client address in sign-in throttling.
const cliIP = "local-cli"

// localVisitor owns pre-sign-in state; the CLI has a single user.
const localVisitor = "local"

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageErr("%s: %v", fs.Name(), err)
	}
	return nil
}

func cmdCatalog(_ context.Context, e env, args []string) error {
	fs := newFlags("catalog")
	q := fs.String("q", "", "search term")
	category := fs.String("category", "", "category")
	if err := parse(fs, args); err != nil {
		return err
	}
	e.print(e.app.Catalog.Search(*q, *category))
	return nil
}

func cmdSignUp(ctx context.Context, e env, args []string) error {
	fs := newFlags("signup")
	name := fs.String("name", "", "full name")
	username := fs.String("u", "", "username")
	email := fs.String("email", "", "email")
	pw := fs.String("p", "", "password")
	ref := fs.String("ref", "", "referral code")
	if err := parse(fs, args); err != nil {
		return err
	}
	acct, err := e.app.Auth.SignUp(ctx, service.SignUpForm{
		FullName: *name, Username: *username, Email: *email,
		Password: *pw, ConfirmPassword: *pw, ReferralCode: *ref,
		Visitor: localVisitor,
	})
	if err != nil {
		return err
	}
	e.print(map[string]string{"id": acct.ID, "email": acct.Email, "username": acct.Username})
	return nil
}

func cmdSignIn(ctx context.Context, e env, args []string) error {
	fs := newFlags("signin")
	email := fs.String("email", "", "email")
	pw := fs.String("p", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := e.app.Auth.SignIn(ctx, *email, *pw, cliIP, true)
	if err != nil {
		return err
	}
	pending, _, err := e.app.Carts.ResumePending(ctx, localVisitor)
	if err != nil {
		return err
	}
	e.print(struct {
		Email    string         `json:"email"`
		FullName string         `json:"full_name"`
		Pending  []model.Course `json:"pending,omitempty"`
	}{sess.Email, sess.FullName, pending})
	return nil
}

func cmdSignOut(ctx context.Context, e env, _ []string) error {
	s, ok := e.app.Auth.CurrentSession(ctx)
	if !ok {
		fmt.Fprintln(e.out, "not signed in")
		return nil
	}
	if err := e.app.Auth.SignOut(ctx, s.Email); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "ok")
	return nil
}

func cmdWhoAmI(ctx context.Context, e env, _ []string) error {
	s, ok := e.app.Auth.CurrentSession(ctx)
	if !ok {
		fmt.Fprintln(e.out, "not signed in")
		return nil
	}
	e.print(s)
	return nil
}

func cmdCart(ctx context.Context, e env, args []string) error {
	email, err := e.requireSession(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usageErr("cart: need add|rm|ls|clear")
	}
	carts := e.app.Carts
	switch args[0] {
	case "add":
		if len(args) != 2 {
			return usageErr("cart add <course>")
		}
		c, err := e.app.Catalog.Get(args[1])
		if err != nil {
			return fmt.Errorf("course %q: %w", args[1], err)
		}
		if _, err := carts.Add(ctx, email, c); err != nil {
			return err
		}
	case "rm":
		if len(args) != 2 {
			return usageErr("cart rm <course>")
		}
		if _, err := carts.Remove(ctx, email, args[1]); err != nil {
			return err
		}
	case "clear":
		if err := carts.Clear(ctx, email); err != nil {
			return err
		}
	case "ls":
	default:
		return usageErr("cart: unknown subcommand %q", args[0])
	}
	e.print(struct {
		Items []model.CartItem `json:"items"`
		Total int64            `json:"total"`
	}{carts.Items(ctx, email), carts.Total(ctx, email)})
	return nil
}

func cmdQuote(_ context.Context, e env, args []string) error {
	fs := newFlags("quote")
	coupon := fs.String("coupon", "", "coupon code")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErr("quote: need at least one course")
	}
	courses, err := e.app.Catalog.GetMany(fs.Args())
	if err != nil {
		return err
	}
	q, err := e.app.Purchases.Quote(courses, *coupon)
	if err != nil {
		return err
	}
	e.print(q)
	return nil
}

func cmdCheckout(ctx context.Context, e env, args []string) error {
	email, err := e.requireSession(ctx)
	if err != nil {
		return err
	}
	fs := newFlags("checkout")
	name := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone")
	coupon := fs.String("coupon", "", "coupon code")
	if err := parse(fs, args); err != nil {
		return err
	}

	var courses []model.Course
	fromCart := fs.NArg() == 0
	if fromCart {
		for _, it := range e.app.Carts.Items(ctx, email) {
			courses = append(courses, it.Course)
		}
		if len(courses) == 0 {
			return errs.Invalid("cart", "Your cart is empty")
		}
	} else if courses, err = e.app.Catalog.GetMany(fs.Args()); err != nil {
		return err
	}

	created, err := e.app.Purchases.Checkout(ctx, courses,
		model.BuyerDetails{FullName: *name, Email: email, Phone: *phone}, *coupon)
	if err != nil {
		return err
	}
	if fromCart {
		if err := e.app.Carts.Clear(ctx, email); err != nil {
			return err
		}
	}
	e.print(created)
	return nil
}

func cmdLibrary(ctx context.Context, e env, args []string) error {
	email, err := e.requireSession(ctx)
	if err != nil {
		return err
	}
	fs := newFlags("library")
	q := fs.String("q", "", "search term")
	open := fs.String("open", "", "course to open")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *open == "" {
		e.print(e.app.Purchases.Library(ctx, email, *q))
		return nil
	}

	c, err := e.app.Catalog.Get(*open)
	if err != nil {
		return fmt.Errorf("course %q: %w", *open, err)
	}
	if !service.CanAccess(ctx, e.app.Purchases, e.app.Referrals, email, c) {
		return fmt.Errorf("%w: this course is locked", errs.ErrUnauthorized)
	}
	e.app.Activity.Track(ctx, email, model.ActionAccessCourse, fmt.Sprintf("Accessed course ID: %s", c.ID), "library")
	fmt.Fprintln(e.out, c.DriveURL)
	return nil
}

func cmdReferral(ctx context.Context, e env, args []string) error {
	email, err := e.requireSession(ctx)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usageErr("referral <course>")
	}
	c, err := e.app.Catalog.Get(args[0])
	if err != nil {
		return fmt.Errorf("course %q: %w", args[0], err)
	}
	st, err := e.app.Referrals.Ensure(ctx, email, c)
	if err != nil {
		return err
	}
	e.print(struct {
		model.ReferralState
		Count     int `json:"count"`
		Remaining int `json:"remaining"`
		Required  int `json:"required"`
	}{st, st.Count(), st.Remaining(), model.RequiredReferrals})
	return nil
}

func cmdEngagement(ctx context.Context, e env, args []string) error {
	email, err := e.requireSession(ctx)
	if err != nil {
		return err
	}
	var v service.EngagementView
	switch {
	case len(args) == 0:
		v, err = e.app.Engagement.Get(ctx, email)
	case args[0] == "visit":
		v, err = e.app.Engagement.Visit(ctx, email)
	case args[0] == "done" && len(args) == 2:
		v, err = e.app.Engagement.CompleteTask(ctx, email, args[1])
	default:
		return usageErr("engagement [visit | done <task>]")
	}
	if err != nil {
		return err
	}
	e.print(v)
	return nil
}

func cmdAdmin(ctx context.Context, e env, args []string) error {
	fs := newFlags("admin")
	user := fs.String("u", envOr("ADMIN_USERNAME", "admin"), "admin username")
	pw := fs.String("p", "", "admin password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if _, err := e.app.Auth.AdminLogin(ctx, *user, *pw, cliIP); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return usageErr("admin: need a subcommand")
	}

	sub := newFlags("admin " + rest[0])
	q := sub.String("q", "", "search term")
	status := sub.String("status", "", "pending|approved|rejected")
	limit := sub.Int("limit", service.ActivityAdminLimit, "max events")
	if err := parse(sub, rest[1:]); err != nil {
		return err
	}

	purchases := e.app.Purchases
	switch rest[0] {
	case "purchases":
		e.print(purchases.List(ctx, *q, model.PurchaseStatus(strings.ToLower(*status))))
	case "approve", "reject":
		if sub.NArg() != 1 {
			return usageErr("admin %s <purchase id>", rest[0])
		}
		op := purchases.Approve
		if rest[0] == "reject" {
			op = purchases.Reject
		}
		p, err := op(ctx, sub.Arg(0))
		if err != nil {
			return err
		}
		e.print(p)
	case "users":
		users, err := e.app.Roster.List(ctx, *q)
		if err != nil {
			return err
		}
		e.print(users)
	case "activity":
		if *limit < 0 {
			return errors.New("limit must be non-negative")
		}
		e.print(e.app.Activity.Recent(ctx, min(*limit, service.ActivityCap), *q))
	case "stats":
		st, err := purchases.Stats(ctx)
		if err != nil {
			return err
		}
		e.print(st)
	default:
		return usageErr("admin: unknown subcommand %q", rest[0])
	}
	return nil
}
