package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"lifesync/cardcatalog"
	"lifesync/models"
	"lifesync/services"
	"lifesync/store"
	"lifesync/table"
)

var errUsage = errors.New("usage")

var titleCase = cases.Title(language.English)

type shell struct {
	table   *table.Table
	catalog *cardcatalog.Client
	auth    *services.AuthServiceClient
	remote  *store.HTTPStore
	out     io.Writer

	accessToken string
}

func newShell(tb *table.Table, catalog *cardcatalog.Client, out io.Writer) *shell {
	return &shell{table: tb, catalog: catalog, out: out}
}

const helpText = `Commands:
  show                         print the table
  add | remove <seat>          seat or remove a player
  life|cmd|poison <seat> <n>   change a counter (n may be negative)
  hold <seat> <n> | release <seat>
                               press-and-hold life change
  name <seat> <name>           rename a player
  color <seat> <color>         white, blue, black, red or green
  icon <seat> <url>            set a player icon
  cards <term>                 search cards
  art <seat> <term>            use the first matching card's art as icon
  roll <sides>                 roll a d2/d4/d6/d8/d10/d12/d20
  timer <duration> | timer stop | timer
  reset                        start a new game with the same players
  host [name] | join <code> [name] | leave
  presets | save <name> | savegame | load <n> | delete <n>
  log                          print the game history
  login <email> <password>     sign in for hosting rights
  signup <email> <password>    create an account and sign in
  forgot <email>               email a password reset link
  profile <display name>       change your display name
  quit`

// exec runs one command line. It reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "show":
		s.show()
	case "log":
		for _, entry := range s.table.Snapshot().GameHistory {
			fmt.Fprintln(s.out, entry)
		}
	case "add":
		p, err := s.table.AddPlayer(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Seated %s.\n", p.Name)
	case "remove":
		p, err := s.seat(args, 1)
		if err != nil {
			return false, err
		}
		return false, s.table.RemovePlayer(ctx, p.ID)
	case "life", "cmd", "poison":
		return false, s.change(ctx, cmd, args)
	case "hold":
		p, err := s.seat(args, 2)
		if err != nil {
			return false, err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return false, fmt.Errorf("%w: hold <seat> <n>", errUsage)
		}
		return false, s.table.Press(ctx, p.ID, models.ChangeLife, n)
	case "release":
		p, err := s.seat(args, 1)
		if err != nil {
			return false, err
		}
		s.table.Release(p.ID, models.ChangeLife)
	case "name":
		p, err := s.seat(args, 2)
		if err != nil {
			return false, err
		}
		name := strings.Join(args[1:], " ")
		_, err = s.table.UpdatePlayer(ctx, p.ID, table.PlayerSettings{Name: &name})
		return false, err
	case "color":
		p, err := s.seat(args, 2)
		if err != nil {
			return false, err
		}
		color := models.ManaColor(strings.ToLower(args[1]))
		_, err = s.table.UpdatePlayer(ctx, p.ID, table.PlayerSettings{ManaColor: &color})
		return false, err
	case "icon":
		p, err := s.seat(args, 2)
		if err != nil {
			return false, err
		}
		_, err = s.table.UpdatePlayer(ctx, p.ID, table.PlayerSettings{Icon: &args[1]})
		return false, err
	case "cards":
		return false, s.cards(ctx, strings.Join(args, " "))
	case "art":
		return false, s.art(ctx, args)
	case "roll":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: roll <sides>", errUsage)
		}
		sides, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(args[0]), "d"))
		if err != nil {
			return false, fmt.Errorf("%w: roll <sides>", errUsage)
		}
		n, err := s.table.RollDice(ctx, sides)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "d%d: %d\n", sides, n)
	case "timer":
		return false, s.timer(args)
	case "reset":
		return false, s.table.Reset(ctx)
	case "host":
		code, ok := s.table.Host(ctx, strings.Join(args, " "))
		if !ok {
			return false, errors.New("could not create a game, check the server connection")
		}
		fmt.Fprintf(s.out, "Hosting game %s\n", code)
	case "join":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: join <code> [name]", errUsage)
		}
		ok, err := s.table.Join(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errors.New("failed to join game, check the code")
		}
		fmt.Fprintf(s.out, "Joined game %s\n", args[0])
	case "leave":
		s.table.Leave(ctx)
		fmt.Fprintln(s.out, "Left the game.")
	case "presets":
		return false, s.presets(ctx)
	case "save":
		p, err := s.table.SavePreset(ctx, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Saved preset %q.\n", p.Name)
	case "savegame":
		p, err := s.table.SaveCurrentGameState(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Game saved to %q.\n", p.Name)
	case "load", "delete":
		p, err := s.preset(ctx, args)
		if err != nil {
			return false, err
		}
		if cmd == "load" {
			return false, s.table.LoadPreset(ctx, p.ID)
		}
		return false, s.table.DeletePreset(ctx, p.ID)
	case "login", "signup":
		return false, s.login(ctx, cmd, args)
	case "forgot":
		return false, s.forgot(ctx, args)
	case "profile":
		return false, s.profile(ctx, args)
	default:
		return false, fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
	return false, nil
}

// seat resolves the 1-based seat in args[0] and checks the argument count.
func (s *shell) seat(args []string, want int) (models.Player, error) {
	if len(args) < want {
		return models.Player{}, fmt.Errorf("%w: expected %d argument(s)", errUsage, want)
	}
	n, err := strconv.Atoi(args[0])
	players := s.table.Snapshot().Players
	if err != nil || n < 1 || n > len(players) {
		return models.Player{}, fmt.Errorf("no seat %q", args[0])
	}
	return players[n-1], nil
}

func (s *shell) change(ctx context.Context, cmd string, args []string) error {
	p, err := s.seat(args, 2)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: %s <seat> <n>", errUsage, cmd)
	}
	switch cmd {
	case "life":
		err = s.table.ChangeLife(ctx, p.ID, n)
	case "cmd":
		err = s.table.ChangeCommanderDamage(ctx, p.ID, n)
	default:
		err = s.table.ChangePoison(ctx, p.ID, n)
	}
	if err != nil {
		return err
	}
	s.show()
	return nil
}

func (s *shell) cards(ctx context.Context, term string) error {
	if s.catalog == nil {
		return errors.New("card search is not available")
	}
	cards, err := s.catalog.Search(ctx, term)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Fprintln(s.out, "No cards found.")
	}
	for i, c := range cards {
		if i == 10 {
			fmt.Fprintf(s.out, "... and %d more\n", len(cards)-10)
			break
		}
		fmt.Fprintf(s.out, "%2d. %s  %s\n", i+1, c.Name, c.TypeLine)
	}
	return nil
}

func (s *shell) art(ctx context.Context, args []string) error {
	p, err := s.seat(args, 2)
	if err != nil {
		return err
	}
	if s.catalog == nil {
		return errors.New("card search is not available")
	}
	cards, err := s.catalog.Search(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	for _, c := range cards {
		if art := c.Art(); art != "" {
			if _, err := s.table.UpdatePlayer(ctx, p.ID, table.PlayerSettings{Icon: &art}); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%s now uses %s.\n", p.Name, c.Name)
			return nil
		}
	}
	return errors.New("no card art found")
}

func (s *shell) timer(args []string) error {
	if len(args) == 0 {
		state := "paused"
		if s.table.TimerActive() {
			state = "running"
		}
		fmt.Fprintf(s.out, "Timer %s: %s left\n", state, s.table.TimeLeft())
		return nil
	}
	if args[0] == "stop" {
		s.table.StopTimer()
		return nil
	}
	if args[0] == "start" {
		return s.table.StartTimer(0)
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("%w: timer <duration>, e.g. timer 50m", errUsage)
	}
	return s.table.StartTimer(d)
}

func (s *shell) presets(ctx context.Context) error {
	presets, err := s.table.Presets(ctx)
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Fprintln(s.out, "No presets saved.")
	}
	for i, p := range presets {
		marker := ""
		if p.GameState != nil {
			marker = " (game in progress)"
		}
		fmt.Fprintf(s.out, "%d. %s, %d players%s\n", i+1, p.Name, len(p.Players), marker)
	}
	return nil
}

func (s *shell) preset(ctx context.Context, args []string) (models.Preset, error) {
	if len(args) != 1 {
		return models.Preset{}, fmt.Errorf("%w: expected a preset number", errUsage)
	}
	presets, err := s.table.Presets(ctx)
	if err != nil {
		return models.Preset{}, err
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(presets) {
		return models.Preset{}, fmt.Errorf("no preset %q", args[0])
	}
	return presets[n-1], nil
}

func (s *shell) login(ctx context.Context, cmd string, args []string) error {
	if s.auth == nil {
		return errors.New("sign-in is not configured")
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: %s <email> <password>", errUsage, cmd)
	}
	signIn := s.auth.SignIn
	if cmd == "signup" {
		signIn = s.auth.SignUp
	}
	session, err := signIn(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	s.accessToken = session.AccessToken
	if s.remote != nil {
		s.remote.UserID = session.UserID
	}
	fmt.Fprintln(s.out, "Signed in.")
	return nil
}

func (s *shell) forgot(ctx context.Context, args []string) error {
	if s.auth == nil {
		return errors.New("sign-in is not configured")
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: forgot <email>", errUsage)
	}
	if err := s.auth.ResetPassword(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Check your inbox for a reset link.")
	return nil
}

func (s *shell) profile(ctx context.Context, args []string) error {
	if s.auth == nil {
		return errors.New("sign-in is not configured")
	}
	if s.accessToken == "" {
		return errors.New("sign in first")
	}
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return fmt.Errorf("%w: profile <display name>", errUsage)
	}
	p, err := s.auth.UpdateProfile(ctx, s.accessToken, services.Profile{DisplayName: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Display name set to %s.\n", p.DisplayName)
	return nil
}

func (s *shell) show() {
	state := s.table.Snapshot()
	if sess, ok := s.table.Session(); ok {
		role := "guest"
		if sess.IsHost {
			role = "host"
		}
		fmt.Fprintf(s.out, "Game %s (%s)\n", sess.ID, role)
	}
	if len(state.Players) == 0 {
		fmt.Fprintln(s.out, "No players yet. Type 'add' to seat one.")
		return
	}
	current, _ := s.table.CurrentPlayer()
	for i, p := range state.Players {
		fmt.Fprintln(s.out, formatPlayer(i+1, p, p.ID == current.ID))
	}
	if state.GameEnded {
		fmt.Fprintln(s.out, "Game over. Type 'reset' for a new game.")
	}
}

func formatPlayer(seat int, p models.Player, current bool) string {
	var b strings.Builder
	marker := " "
	if current {
		marker = ">"
	}
	fmt.Fprintf(&b, "%s%d. %-12s %-6s life %3d  cmd %2d  poison %2d",
		marker, seat, p.Name, titleCase.String(string(p.ManaColor)), p.Life, p.CommanderDamage, p.PoisonCounters)
	switch {
	case p.HasCrown:
		b.WriteString("  [winner]")
	case p.IsDead && p.EliminatedBy != models.CauseNone:
		fmt.Fprintf(&b, "  [out: %s]", strings.ReplaceAll(string(p.EliminatedBy), "_", " "))
	case p.IsDead:
		b.WriteString("  [out]")
	}
	return b.String()
}
