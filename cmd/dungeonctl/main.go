// Command dungeonctl talks to a dungeon node over HTTP.
//
//	dungeonctl enter -wallet 0x... -token 1 -payment 0.00001
//	dungeonctl card -wallet 0x... -token 1 -index 2
//	dungeonctl login -admin-token s3cret
//	dungeonctl distribute 0xaaa... 0xbbb...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/afurourrego/dungeonflip/internal/api"
	"github.com/afurourrego/dungeonflip/internal/autoplay"
	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/client"
	"github.com/afurourrego/dungeonflip/internal/events"
)

const defaultNode = "http://127.0.0.1:8787"

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"health":      {"node health report", cmdHealth},
	"constants":   {"run engine constants", cmdConstants},
	"session":     {"-token ID", cmdSession},
	"player":      {"-wallet ADDR", cmdPlayer},
	"leaderboard": {"[-week N]", cmdLeaderboard},
	"fees":        {"fee buckets", cmdFees},
	"events":      {"[-type T] [-token ID] [-after SEQ] [-limit N]", cmdEvents},
	"enter":       {"-wallet ADDR -token ID [-payment AMOUNT]", cmdEnter},
	"card":        {"-wallet ADDR -token ID -index I", cmdCard},
	"pause":       {"-wallet ADDR -token ID", walletCmd("pause")},
	"exit":        {"-wallet ADDR -token ID", walletCmd("exit")},
	"claim":       {"-wallet ADDR -token ID", walletCmd("claim")},
	"withdraw":    {"-wallet ADDR -token ID", walletCmd("withdraw")},
	"autoplay":    {"-wallet ADDR -token ID [-strategy FILE] [-payment AMOUNT]", cmdAutoplay},
	"weeks":       {"reward calendar", cmdWeeks},
	"week":        {"-week N", cmdWeek},
	"payouts":     {"payouts CSV to stdout", cmdPayouts},
	"advance":     {"-caller ADDR", cmdAdvance},
	"distribute":  {"WINNER... (admin)", cmdDistribute},
	"set-paused":  {"-component fees|runs [-resume] (admin)", cmdSetPaused},
	"drain":       {"-bucket dev|marketing -to ADDR (admin)", cmdDrain},
	"faucet":      {"-to ADDR -amount AMOUNT (dev)", cmdFaucet},
	"mint":        {"-owner ADDR [-seed S] (dev)", cmdMint},
	"login":       {"-admin-token T", cmdLogin},
	"logout":      {"forget the stored admin token", cmdLogout},
}

type env struct {
	node   string
	tokens *client.TokenStore
	client *client.Client
}

func main() {
	global := flag.NewFlagSet("dungeonctl", flag.ExitOnError)
	node := global.String("node", envOr("DUNGEON_NODE", defaultNode), "node base URL")
	adminToken := global.String("admin-token", os.Getenv("DUNGEON_ADMIN_TOKEN"), "admin bearer token (default: stored token)")
	timeout := global.Duration("timeout", 60*time.Second, "overall command timeout")
	global.Usage = usage
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}

	e := &env{node: *node, tokens: client.NewTokenStore("dungeonctl", client.DefaultFallbackPath())}
	token := *adminToken
	if token == "" {
		if stored, err := e.tokens.Get(*node); err == nil {
			token = stored
		}
	}
	e.client = client.New(client.Config{BaseURL: *node, AdminToken: token})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := cmd.run(ctx, e, args[1:]); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "error: %s (request %s)\n", apiErr.Error(), apiErr.RequestID)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dungeonctl [-node URL] [-admin-token T] <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", name, commands[name].usage)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runFlags are shared by every command that acts on one token.
type runFlags struct {
	fs     *flag.FlagSet
	wallet *string
	token  *uint64
}

func newRunFlags(name string) runFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return runFlags{
		fs:     fs,
		wallet: fs.String("wallet", os.Getenv("DUNGEON_WALLET"), "wallet address acting as caller"),
		token:  fs.Uint64("token", 0, "adventurer token id"),
	}
}

func (f runFlags) parse(args []string) (chain.Address, uint64, error) {
	_ = f.fs.Parse(args)
	wallet, err := chain.ParseAddress(*f.wallet)
	if err != nil {
		return "", 0, fmt.Errorf("-wallet: %w", err)
	}
	if *f.token == 0 {
		return "", 0, errors.New("missing -token")
	}
	return wallet, *f.token, nil
}

func parseAddressFlag(name, v string) (chain.Address, error) {
	a, err := chain.ParseAddress(v)
	if err != nil {
		return "", fmt.Errorf("-%s: %w", name, err)
	}
	return a, nil
}

func cmdHealth(ctx context.Context, e *env, _ []string) error {
	h, err := e.client.Health(ctx)
	if err != nil {
		return err
	}
	return printJSON(h)
}

func cmdConstants(ctx context.Context, e *env, _ []string) error {
	c, err := e.client.Constants(ctx)
	if err != nil {
		return err
	}
	return printJSON(c)
}

func cmdSession(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	token := fs.Uint64("token", 0, "adventurer token id")
	_ = fs.Parse(args)
	s, err := e.client.Session(ctx, *token)
	if err != nil {
		return err
	}
	return printJSON(s)
}

func cmdPlayer(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("player", flag.ExitOnError)
	wallet := fs.String("wallet", os.Getenv("DUNGEON_WALLET"), "wallet address")
	_ = fs.Parse(args)
	a, err := parseAddressFlag("wallet", *wallet)
	if err != nil {
		return err
	}
	p, err := e.client.Player(ctx, a)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func cmdLeaderboard(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	week := fs.Uint64("week", 0, "week number (default: current)")
	_ = fs.Parse(args)
	lb, err := e.client.Leaderboard(ctx, *week)
	if err != nil {
		return err
	}
	fmt.Printf("week %d (current %d, finalized %t)\n", lb.Week, lb.CurrentWeek, lb.Finalized)
	for _, entry := range lb.Entries {
		fmt.Printf("%3d  %s  %d\n", entry.Rank, entry.Player, entry.Score)
	}
	return nil
}

func cmdFees(ctx context.Context, e *env, _ []string) error {
	f, err := e.client.Fees(ctx)
	if err != nil {
		return err
	}
	return printJSON(f)
}

func cmdEvents(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	typ := fs.String("type", "", "event type, e.g. RunStarted")
	token := fs.Uint64("token", 0, "token id")
	after := fs.Uint64("after", 0, "only events after this sequence number")
	limit := fs.Int("limit", 100, "max events (1-1000)")
	_ = fs.Parse(args)
	recs, err := e.client.Events(ctx, client.EventFilter{Type: events.Type(*typ), TokenID: *token, After: *after, Limit: *limit})
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%6d  %s  %-20s token=%d  %s\n", r.Seq, r.OccurredAt.Format(time.RFC3339), r.Type, r.TokenID, r.Data)
	}
	return nil
}

func cmdEnter(ctx context.Context, e *env, args []string) error {
	f := newRunFlags("enter")
	payment := f.fs.String("payment", "", "entry payment in whole tokens; 0 resumes (default: the entry fee)")
	wallet, token, err := f.parse(args)
	if err != nil {
		return err
	}
	if *payment == "" {
		c, err := e.client.Constants(ctx)
		if err != nil {
			return err
		}
		*payment = c.EntryFeeTokens
	}
	s, err := e.client.Enter(ctx, wallet, token, *payment)
	if err != nil {
		return err
	}
	return printJSON(s)
}

func cmdCard(ctx context.Context, e *env, args []string) error {
	f := newRunFlags("card")
	index := f.fs.Uint("index", 0, "card index in the room")
	wallet, token, err := f.parse(args)
	if err != nil {
		return err
	}
	if *index > 255 {
		return errors.New("-index out of range")
	}
	d, err := e.client.Card(ctx, wallet, token, uint8(*index))
	if err != nil {
		return err
	}
	out := d.Draw.Outcome
	fmt.Printf("room %d card %d: %s  hp %d -> %d  gems +%d  died=%t\n",
		d.Draw.Room, d.Draw.CardIndex, out.Card, out.HPBefore, d.Draw.Session.CurrentHP, out.Gems, out.Died)
	return nil
}

func walletCmd(op string) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		wallet, token, err := newRunFlags(op).parse(args)
		if err != nil {
			return err
		}
		call := map[string]func(context.Context, chain.Address, uint64) (api.SessionResponse, error){
			"pause":    e.client.Pause,
			"exit":     e.client.Exit,
			"claim":    e.client.Claim,
			"withdraw": e.client.ForceWithdraw,
		}[op]
		s, err := call(ctx, wallet, token)
		if err != nil {
			return err
		}
		fmt.Printf("token %d %s: room %d gems %d score %d\n", token, s.Session.Status, s.Session.CurrentRoom, s.Session.GemsCollected, s.Score)
		return nil
	}
}

func cmdAutoplay(ctx context.Context, e *env, args []string) error {
	f := newRunFlags("autoplay")
	strategy := f.fs.String("strategy", "", "JavaScript strategy file defining decide(run)")
	payment := f.fs.String("payment", "", "entry payment in whole tokens; 0 resumes (default: the entry fee)")
	wallet, token, err := f.parse(args)
	if err != nil {
		return err
	}
	var script string
	if *strategy != "" {
		b, err := os.ReadFile(*strategy)
		if err != nil {
			return err
		}
		script = string(b)
	}
	eng, err := client.NewRemoteEngine(ctx, e.client)
	if err != nil {
		return err
	}
	p, err := autoplay.NewPlayer(eng, script, nil)
	if err != nil {
		return err
	}
	amount := eng.Constants().EntryFee
	if *payment == "0" {
		amount = 0
	} else if *payment != "" {
		c, err := e.client.Constants(ctx)
		if err != nil {
			return err
		}
		if *payment != c.EntryFeeTokens {
			return fmt.Errorf("-payment must be 0 or the entry fee %s", c.EntryFeeTokens)
		}
	}
	res, err := p.Play(ctx, wallet, token, amount)
	for _, l := range p.Logs() {
		fmt.Fprintln(os.Stderr, "strategy:", l.Message)
	}
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdWeeks(ctx context.Context, e *env, _ []string) error {
	w, err := e.client.Weeks(ctx)
	if err != nil {
		return err
	}
	return printJSON(w)
}

func cmdWeek(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("week", flag.ExitOnError)
	week := fs.Uint64("week", 0, "week number")
	_ = fs.Parse(args)
	h, err := e.client.Week(ctx, *week)
	if err != nil {
		return err
	}
	return printJSON(h)
}

func cmdPayouts(ctx context.Context, e *env, _ []string) error {
	return e.client.PayoutsCSV(ctx, os.Stdout)
}

func cmdAdvance(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("advance", flag.ExitOnError)
	caller := fs.String("caller", os.Getenv("DUNGEON_WALLET"), "address triggering the advance")
	_ = fs.Parse(args)
	a, err := parseAddressFlag("caller", *caller)
	if err != nil {
		return err
	}
	ev, err := e.client.Advance(ctx, a)
	if err != nil {
		return err
	}
	return printJSON(ev)
}

func cmdDistribute(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("distribute", flag.ExitOnError)
	_ = fs.Parse(args)
	winners := make([]chain.Address, 0, fs.NArg())
	for _, raw := range fs.Args() {
		a, err := chain.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("winner %q: %w", raw, err)
		}
		winners = append(winners, a)
	}
	if len(winners) == 0 {
		return errors.New("at least one winner is required")
	}
	h, err := e.client.Distribute(ctx, winners)
	if err != nil {
		return err
	}
	return printJSON(h)
}

func cmdSetPaused(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("set-paused", flag.ExitOnError)
	component := fs.String("component", "runs", "fees or runs")
	resume := fs.Bool("resume", false, "unpause instead")
	_ = fs.Parse(args)
	if err := e.client.SetPaused(ctx, *component, !*resume); err != nil {
		return err
	}
	fmt.Printf("%s paused=%t\n", *component, !*resume)
	return nil
}

func cmdDrain(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("drain", flag.ExitOnError)
	bucket := fs.String("bucket", "dev", "dev or marketing")
	to := fs.String("to", "", "recipient address")
	_ = fs.Parse(args)
	a, err := parseAddressFlag("to", *to)
	if err != nil {
		return err
	}
	w, err := e.client.WithdrawBucket(ctx, *bucket, a)
	if err != nil {
		return err
	}
	return printJSON(w)
}

func cmdFaucet(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("faucet", flag.ExitOnError)
	to := fs.String("to", os.Getenv("DUNGEON_WALLET"), "recipient address")
	amount := fs.String("amount", "1", "whole tokens")
	_ = fs.Parse(args)
	a, err := parseAddressFlag("to", *to)
	if err != nil {
		return err
	}
	c, err := e.client.Faucet(ctx, a, *amount)
	if err != nil {
		return err
	}
	return printJSON(c)
}

func cmdMint(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	owner := fs.String("owner", os.Getenv("DUNGEON_WALLET"), "owner address")
	seed := fs.String("seed", "", "mint seed (default: time based)")
	_ = fs.Parse(args)
	a, err := parseAddressFlag("owner", *owner)
	if err != nil {
		return err
	}
	m, err := e.client.Mint(ctx, a, *seed)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func cmdLogin(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("admin-token", "", "admin token to store for this node")
	_ = fs.Parse(args)
	if strings.TrimSpace(*token) == "" {
		return errors.New("missing -admin-token")
	}
	if err := e.tokens.Set(e.node, *token); err != nil {
		return err
	}
	fmt.Printf("admin token stored for %s\n", e.node)
	return nil
}

func cmdLogout(_ context.Context, e *env, _ []string) error {
	if err := e.tokens.Delete(e.node); err != nil {
		return err
	}
	fmt.Printf("admin token removed for %s\n", e.node)
	return nil
}
