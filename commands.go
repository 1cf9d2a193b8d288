package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/subtrackr/subtrackr-cli/api"
)

// command is one subcommand. Local commands run without a session stack.
type command struct {
	name    string
	summary string
	local   bool
	run     func(ctx context.Context, a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "login", summary: "log in and store the token pair", run: cmdLogin},
		{name: "register", summary: "create an account", run: cmdRegister},
		{name: "logout", summary: "forget the stored session", run: cmdLogout},
		{name: "status", summary: "show whether the profile is logged in", run: cmdStatus},
		{name: "list", summary: "list subscriptions", run: cmdList},
		{name: "add", summary: "add a subscription", run: cmdAdd},
		{name: "edit", summary: "change a subscription", run: cmdEdit},
		{name: "remove", summary: "delete a subscription", run: cmdRemove},
		{name: "summary", summary: "monthly cost, yearly estimate and categories", run: cmdSummary},
		{name: "renewals", summary: "upcoming charges", run: cmdRenewals},
		{name: "trend", summary: "projected spend per month", run: cmdTrend},
		{name: "notifications", summary: "list notifications or mark one read", run: cmdNotifications},
		{name: "profile", summary: "show the account profile", run: cmdProfile},
		{name: "activities", summary: "show the activity timeline", run: cmdActivities},
		{name: "reset-password", summary: "request a password reset email", run: cmdResetPassword},
		{name: "dev-server", summary: "run a local in-memory backend", local: true, run: cmdDevServer},
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// errUsage marks bad command-line input; the flag set already printed help.
var errUsage = errors.New("usage error")

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments: %s", errUsage, strings.Join(fs.Args(), " "))
	}
	return nil
}

// passwordFlag registers -password, falling back to SUBTRACKR_PASSWORD so
// the secret can stay out of shell history.
func passwordFlag(fs *flag.FlagSet) *string {
	return fs.String("password", os.Getenv("SUBTRACKR_PASSWORD"), "password (SUBTRACKR_PASSWORD)")
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login", os.Stderr)
	username := fs.String("username", "", "account name")
	password := passwordFlag(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := a.client.Login(ctx, *username, *password); err != nil {
		return err
	}
	a.d.LoggedIn(*username)
	return nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("register", os.Stderr)
	var in api.RegisterInput
	fs.StringVar(&in.Username, "username", "", "account name")
	fs.StringVar(&in.Email, "email", "", "email address")
	password := passwordFlag(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in.Password = *password

	loggedIn, err := a.client.Register(ctx, in)
	if err != nil {
		var verr *api.ValidationError
		if errors.As(err, &verr) && verr.Fields()["password"] != "" {
			score := api.PasswordStrength(in.Password)
			return fmt.Errorf("%w (password strength: %s, %d/5)", err, api.StrengthLabel(score), score)
		}
		return err
	}
	a.d.Registered(in.Username, loggedIn)
	return nil
}

func cmdLogout(_ context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("logout", os.Stderr), args); err != nil {
		return err
	}
	if err := a.client.Logout(); err != nil {
		return err
	}
	a.d.LoggedOut()
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("status", os.Stderr), args); err != nil {
		return err
	}
	if !a.client.Sessions().IsAuthenticated() {
		a.d.Status(a.cfg.Profile, false, nil)
		return nil
	}

	p, err := a.client.Profile(ctx)
	if err != nil {
		if isLoginRequired(err) {
			return err
		}
		a.logger.Warn("profile lookup failed", zap.Error(err))
		a.d.Status(a.cfg.Profile, true, nil)
		return nil
	}
	a.d.Status(a.cfg.Profile, true, p)
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("list", os.Stderr)
	category := fs.String("category", "", "only this category")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	subs, err := a.client.ListSubscriptions(ctx, *category)
	if err != nil {
		return err
	}
	a.d.Subscriptions(subs)
	return nil
}

// subscriptionFlags binds the editable subscription fields to fs.
type subscriptionFlags struct {
	name     string
	price    float64
	cycle    string
	next     string
	category string
	logo     string
}

func (f *subscriptionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.name, "name", f.name, "subscription name")
	fs.Float64Var(&f.price, "price", f.price, "price per cycle")
	fs.StringVar(&f.cycle, "cycle", f.cycle, "billing cycle: monthly or yearly")
	fs.StringVar(&f.next, "next", f.next, "next billing date (YYYY-MM-DD)")
	fs.StringVar(&f.category, "category", f.category, "category, e.g. "+strings.Join(api.Categories[:3], ", "))
	fs.StringVar(&f.logo, "logo", f.logo, "logo URL")
}

func (f *subscriptionFlags) input() (api.SubscriptionInput, error) {
	in := api.SubscriptionInput{
		Name:     f.name,
		Price:    f.price,
		Cycle:    api.Cycle(f.cycle),
		Category: f.category,
		Logo:     f.logo,
	}
	if f.next != "" {
		d, err := api.ParseDate(f.next)
		if err != nil {
			return api.SubscriptionInput{}, fmt.Errorf("%w: -next: %w", errUsage, err)
		}
		in.NextBillingDate = d
	}
	return in, nil
}

func cmdAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("add", os.Stderr)
	f := subscriptionFlags{cycle: string(api.Monthly)}
	f.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in, err := f.input()
	if err != nil {
		return err
	}

	sub, err := a.client.CreateSubscription(ctx, in)
	if err != nil {
		return err
	}
	a.d.SubscriptionAdded(*sub)
	return nil
}

func cmdEdit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("edit", os.Stderr)
	id := fs.String("id", "", "subscription id")
	var f subscriptionFlags
	f.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	current, err := a.client.GetSubscription(ctx, api.ID(*id))
	if err != nil {
		return err
	}

	// start from the stored values and apply only the flags given
	edit := subscriptionFlags{
		name:     current.Name,
		price:    float64(current.Price),
		cycle:    string(current.Cycle),
		next:     current.NextBillingDate.String(),
		category: current.Category,
		logo:     current.Logo,
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			edit.name = f.name
		case "price":
			edit.price = f.price
		case "cycle":
			edit.cycle = f.cycle
		case "next":
			edit.next = f.next
		case "category":
			edit.category = f.category
		case "logo":
			edit.logo = f.logo
		}
	})
	in, err := edit.input()
	if err != nil {
		return err
	}

	sub, err := a.client.UpdateSubscription(ctx, current.ID, in)
	if err != nil {
		return err
	}
	a.d.Subscriptions([]api.Subscription{*sub})
	return nil
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("remove", os.Stderr)
	id := fs.String("id", "", "subscription id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	if err := a.client.DeleteSubscription(ctx, api.ID(*id)); err != nil {
		return err
	}
	a.d.SubscriptionRemoved(api.ID(*id))
	return nil
}

func cmdSummary(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("summary", os.Stderr), args); err != nil {
		return err
	}
	s, err := a.client.Summary(ctx)
	if err != nil {
		return err
	}
	a.d.Summary(s)
	return nil
}

func cmdRenewals(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("renewals", os.Stderr)
	days := fs.Int("days", 30, "look this many days ahead; negative means no limit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	rs, err := a.client.Renewals(ctx, *days)
	if err != nil {
		return err
	}
	a.d.Renewals(rs)
	return nil
}

func cmdTrend(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("trend", os.Stderr)
	months := fs.Int("months", 6, "number of months to project")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *months <= 0 {
		return fmt.Errorf("%w: -months must be positive", errUsage)
	}
	trend, err := a.client.Trend(ctx, *months)
	if err != nil {
		return err
	}
	a.d.Trend(trend)
	return nil
}

func cmdNotifications(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("notifications", os.Stderr)
	read := fs.String("read", "", "mark this notification id as read")
	unread := fs.Bool("unread", false, "only unread notifications")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *read != "" {
		if err := a.client.MarkNotificationRead(ctx, api.ID(*read)); err != nil {
			return err
		}
		a.d.NotificationRead(api.ID(*read))
		return nil
	}

	ns, err := a.client.Notifications(ctx)
	if err != nil {
		return err
	}
	if *unread {
		filtered := ns[:0]
		for _, n := range ns {
			if !n.IsRead {
				filtered = append(filtered, n)
			}
		}
		ns = filtered
	}
	a.d.Notifications(ns)
	return nil
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("profile", os.Stderr), args); err != nil {
		return err
	}
	p, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}
	a.d.Profile(*p)
	return nil
}

func cmdActivities(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("activities", os.Stderr), args); err != nil {
		return err
	}
	as, err := a.client.Activities(ctx)
	if err != nil {
		return err
	}
	a.d.Activities(as)
	return nil
}

func cmdResetPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reset-password", os.Stderr)
	email := fs.String("email", "", "account email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := a.client.RequestPasswordReset(ctx, *email); err != nil {
		return err
	}
	a.d.PasswordResetRequested(*email)
	return nil
}
